package mt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v3"
)

// GoogleTranslateProvider translates through the Cloud Translation v3 API,
// which takes HTML payloads directly, so no segmentation happens here.
// Authentication is either an API key or an OAuth credentials file with a
// cached token; glossaries are ignored because v3 only accepts server-side
// glossary resources.
type GoogleTranslateProvider struct {
	service   *translate.Service
	oauthCfg  *oauth2.Config
	token     *oauth2.Token
	tokenFile string
	parent    string
	logger    *zap.Logger
}

func NewGoogleTranslateProvider(ctx context.Context, cfg config.GoogleTranslateConfig, logger *zap.Logger) (*GoogleTranslateProvider, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("google translate project id is required")
	}

	p := &GoogleTranslateProvider{
		parent:    fmt.Sprintf("projects/%s/locations/global", cfg.ProjectID),
		tokenFile: cfg.TokenFile,
		logger:    logger,
	}
	if p.tokenFile == "" {
		p.tokenFile = "token.json"
	}

	if cfg.APIKey != "" {
		svc, err := translate.NewService(ctx, option.WithAPIKey(cfg.APIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create translate service: %w", err)
		}
		p.service = svc

		logger.Info("Google Translate service initialized",
			zap.String("auth", "api_key"))
		return p, nil
	}

	credBytes, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(credBytes, translate.CloudTranslationScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	p.oauthCfg = oauthCfg

	token, err := loadToken(p.tokenFile)
	if err != nil {
		logger.Warn("No existing token found, need to authorize",
			zap.String("file", p.tokenFile))
		return p, nil
	}
	p.token = token

	client := oauthCfg.Client(ctx, token)
	svc, err := translate.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create translate service: %w", err)
	}
	p.service = svc

	logger.Info("Google Translate service initialized",
		zap.String("auth", "oauth"))

	return p, nil
}

// Authorize runs the interactive OAuth flow and caches the token. It only
// applies to the credentials file flow.
func (p *GoogleTranslateProvider) Authorize(ctx context.Context) error {
	if p.oauthCfg == nil {
		return fmt.Errorf("authorization requires a credentials file configuration")
	}

	authURL := p.oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	p.logger.Info("Authorization required")
	fmt.Println("\n=== Google Translate API Authorization ===")
	fmt.Println("Go to the following link in your browser:")
	fmt.Println(authURL)
	fmt.Println("\nAfter authorization, enter the code here:")

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return fmt.Errorf("unable to read authorization code: %w", err)
	}

	token, err := p.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token: %w", err)
	}

	if err := saveToken(p.tokenFile, token); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}
	p.token = token

	client := p.oauthCfg.Client(ctx, token)
	svc, err := translate.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return fmt.Errorf("failed to create translate service: %w", err)
	}
	p.service = svc

	p.logger.Info("Google Translate authorization complete",
		zap.String("token_file", p.tokenFile))

	fmt.Println("\n✅ Authorization successful! Token saved.")

	return nil
}

func (p *GoogleTranslateProvider) IsAuthorized() bool {
	return p != nil && p.service != nil
}

func (p *GoogleTranslateProvider) Name() string {
	return "GoogleTranslate"
}

func (p *GoogleTranslateProvider) Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error) {
	if p.service == nil {
		return nil, fmt.Errorf("google translate service not authorized")
	}

	mimeType := "text/plain"
	if req.Kind == domain.TranslationKindHTML {
		mimeType = "text/html"
	}

	p.logger.Debug("Translating with Google Translate",
		zap.String("source", req.SourceLang),
		zap.String("target", req.TargetLang),
		zap.String("mime_type", mimeType),
	)

	resp, err := p.service.Projects.Locations.TranslateText(p.parent, &translate.TranslateTextRequest{
		Contents:           []string{req.Text},
		MimeType:           mimeType,
		SourceLanguageCode: bcp47(req.SourceLang),
		TargetLanguageCode: bcp47(req.TargetLang),
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Error("Google Translate request failed", zap.Error(err))
		return nil, err
	}

	if len(resp.Translations) == 0 {
		return nil, fmt.Errorf("empty response from Google Translate")
	}

	model := resp.Translations[0].Model
	if model == "" {
		model = "nmt"
	}

	return &domain.TranslationResult{
		Text:     resp.Translations[0].TranslatedText,
		Provider: p.Name(),
		Model:    model,
	}, nil
}

func (p *GoogleTranslateProvider) Ping(ctx context.Context) bool {
	if p.service == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.logger.Debug("Pinging Google Translate API...")

	if _, err := p.service.Projects.Locations.GetSupportedLanguages(p.parent).Context(ctx).Do(); err != nil {
		p.logger.Debug("Google Translate ping failed", zap.Error(err))
		return false
	}

	return true
}

func loadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

func saveToken(file string, token *oauth2.Token) error {
	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}
