package mt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

const openaiMaxCompletionTokens = 4096

// OpenAIProvider translates through the chat completions API.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	segmenter *Segmenter
	logger    *zap.Logger
}

// NewOpenAIProvider returns nil when no API key is configured.
func NewOpenAIProvider(cfg config.OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.APIKey == "" {
		return nil
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-5-mini"
	}

	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAIProvider{
		client:    &client,
		model:     model,
		segmenter: NewSegmenter(),
		logger:    logger,
	}
}

func (o *OpenAIProvider) Name() string {
	return "OpenAI"
}

func (o *OpenAIProvider) Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error) {
	if o.client == nil {
		return nil, fmt.Errorf("OpenAI client not initialized")
	}

	seg, err := o.segmenter.Split(req.Text, req.Kind)
	if err != nil {
		return nil, err
	}
	if len(seg.Texts) == 0 {
		return &domain.TranslationResult{Text: req.Text, Provider: o.Name(), Model: o.model}, nil
	}

	promptText, err := buildTranslatePrompt(req, seg.Texts)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("Translating with OpenAI",
		zap.String("model", o.model),
		zap.String("source", req.SourceLang),
		zap.String("target", req.TargetLang),
		zap.Int("segments", len(seg.Texts)),
	)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("You must respond with valid JSON only. Do not include any text outside the JSON object."),
		openai.UserMessage(promptText),
	}

	isGPT5 := strings.HasPrefix(o.model, "gpt-5")

	params := openai.ChatCompletionNewParams{
		Model:               chatModel(o.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(openaiMaxCompletionTokens)),
	}

	if !isGPT5 {
		params.Temperature = openai.Float(0.1)
		params.TopP = openai.Float(0.95)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		o.logger.Error("OpenAI translation failed", zap.Error(err))
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenAI response")
	}

	text := resp.Choices[0].Message.Content

	o.logger.Debug("OpenAI response received",
		zap.Int("length", len(text)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	translations, err := decodeTranslations(text, len(seg.Texts))
	if err != nil {
		return nil, err
	}

	out, err := seg.Join(translations)
	if err != nil {
		return nil, err
	}

	return &domain.TranslationResult{Text: out, Provider: o.Name(), Model: o.model}, nil
}

func (o *OpenAIProvider) Ping(ctx context.Context) bool {
	if o.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o.logger.Debug("Pinging OpenAI API...")

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4o,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("ping"),
		},
		MaxTokens:   openai.Int(10),
		Temperature: openai.Float(0),
	})
	if err != nil {
		o.logger.Debug("OpenAI ping failed", zap.Error(err))
		return false
	}

	return len(resp.Choices) > 0
}

func chatModel(name string) openai.ChatModel {
	switch name {
	case "gpt-5-mini":
		return openai.ChatModelGPT5Mini
	case "gpt-5":
		return openai.ChatModelGPT5
	case "gpt-5-nano":
		return openai.ChatModelGPT5Nano
	case "gpt-4.1":
		return openai.ChatModelGPT4_1
	case "gpt-4.1-mini":
		return openai.ChatModelGPT4_1Mini
	case "gpt-4.1-nano":
		return openai.ChatModelGPT4_1Nano
	case "gpt-4o":
		return openai.ChatModelGPT4o
	case "gpt-4o-mini":
		return openai.ChatModelGPT4oMini
	case "gpt-4-turbo":
		return openai.ChatModelGPT4Turbo
	default:
		return openai.ChatModelGPT4_1
	}
}
