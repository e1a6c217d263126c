package mt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const geminiMaxOutputTokens = 4096

// GeminiProvider translates through the Gemini API in JSON mode.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	segmenter *Segmenter
	logger    *zap.Logger
}

func NewGeminiProvider(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiProvider{
		client:    client,
		model:     model,
		segmenter: NewSegmenter(),
		logger:    logger,
	}, nil
}

func (g *GeminiProvider) Name() string {
	return "Gemini"
}

func (g *GeminiProvider) Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error) {
	if g.client == nil {
		return nil, fmt.Errorf("gemini client not initialized")
	}

	seg, err := g.segmenter.Split(req.Text, req.Kind)
	if err != nil {
		return nil, err
	}
	if len(seg.Texts) == 0 {
		return &domain.TranslationResult{Text: req.Text, Provider: g.Name(), Model: g.model}, nil
	}

	promptText, err := buildTranslatePrompt(req, seg.Texts)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Translating with Gemini",
		zap.String("model", g.model),
		zap.String("source", req.SourceLang),
		zap.String("target", req.TargetLang),
		zap.Int("segments", len(seg.Texts)),
	)

	temperature := float32(0.1)
	topP := float32(0.95)
	topK := float32(40)

	genConfig := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		TopP:             &topP,
		TopK:             &topK,
		MaxOutputTokens:  geminiMaxOutputTokens,
		ResponseMIMEType: "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: promptText},
			},
		},
	}, genConfig)
	if err != nil {
		g.logger.Error("Gemini translation failed", zap.Error(err))
		return nil, err
	}

	text := extractGeminiText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	translations, err := decodeTranslations(text, len(seg.Texts))
	if err != nil {
		return nil, err
	}

	out, err := seg.Join(translations)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Gemini response received", zap.Int("length", len(text)))
	return &domain.TranslationResult{Text: out, Provider: g.Name(), Model: g.model}, nil
}

func (g *GeminiProvider) Ping(ctx context.Context) bool {
	if g.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	g.logger.Debug("Pinging Gemini API...")

	temp := float32(0)
	topP := float32(1)
	topK := float32(1)

	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		TopK:            &topK,
		MaxOutputTokens: 10,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{Parts: []*genai.Part{{Text: "ping"}}},
	}, config)
	if err != nil {
		g.logger.Debug("Gemini ping failed", zap.Error(err))
		return false
	}

	return extractGeminiText(resp) != ""
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, "")
}
