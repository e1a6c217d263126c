package mt

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/util"
	"github.com/kapu/modeltrans-go/pkg/errors"
	"go.uber.org/zap"
)

// Manager routes translation requests to a primary provider with an optional
// fallback, behind a shared circuit breaker. Only service failures (5xx,
// timeouts, rate limits) count against the breaker; bad requests do not.
type Manager struct {
	primary        Provider
	fallback       Provider
	logger         *zap.Logger
	enableFallback bool
	circuitBreaker *util.CircuitBreaker
}

// ManagerConfig carries the provider credentials. Providers are picked in
// the order Google Translate, Gemini, OpenAI: the first configured one is
// primary, the next is fallback.
type ManagerConfig struct {
	Gemini config.GeminiConfig
	OpenAI config.OpenAIConfig
	Google config.GoogleTranslateConfig
}

func NewManager(primary, fallback Provider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		primary: primary,
		logger:  logger,
	}

	if fallback != nil {
		m.fallback = fallback
		m.enableFallback = true
		logger.Info("Translation fallback enabled",
			zap.String("primary", primary.Name()),
			zap.String("fallback", fallback.Name()),
		)
	}

	m.circuitBreaker = util.NewCircuitBreaker(
		constants.CircuitBreakerConfig.FailureThreshold,
		constants.CircuitBreakerConfig.ResetTimeout,
		constants.CircuitBreakerConfig.HealthCheckInterval,
		m.healthCheckPing,
		logger,
	)

	return m
}

// NewManagerFromConfig builds the providers the configuration names and
// wires them into a Manager. OpenAI joins only as a fallback unless it is
// the sole configured provider.
func NewManagerFromConfig(ctx context.Context, cfg ManagerConfig, logger *zap.Logger) (*Manager, error) {
	var providers []Provider

	if cfg.Google.APIKey != "" || cfg.Google.CredentialsFile != "" {
		google, err := NewGoogleTranslateProvider(ctx, cfg.Google, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, google)
	}

	if cfg.Gemini.APIKey != "" {
		gemini, err := NewGeminiProvider(ctx, cfg.Gemini, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, gemini)
	}

	if openaiProvider := NewOpenAIProvider(cfg.OpenAI, logger); openaiProvider != nil {
		if cfg.OpenAI.EnableFallback || len(providers) == 0 {
			providers = append(providers, openaiProvider)
		} else {
			logger.Info("OpenAI provider configured but fallback disabled")
		}
	}

	if len(providers) == 0 {
		return nil, errors.NewProviderError("no translation provider configured", "mt", http.StatusServiceUnavailable, nil)
	}

	var fallback Provider
	if len(providers) > 1 {
		fallback = providers[1]
	}

	return NewManager(providers[0], fallback, logger), nil
}

func (m *Manager) Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error) {
	if !m.circuitBreaker.CanExecute() {
		status := m.circuitBreaker.GetStatus()
		nextRetry := "unknown"
		if status.NextRetryTime != nil {
			nextRetry = status.NextRetryTime.UTC().Format(time.RFC3339)
		}

		m.logger.Error("Translation service rejected (Circuit OPEN)",
			zap.String("state", status.State.String()),
			zap.Int("failure_count", status.FailureCount),
			zap.String("next_retry", nextRetry),
		)

		return nil, errors.NewProviderError(
			fmt.Sprintf("translation providers unavailable, next retry at %s", nextRetry),
			"circuit", http.StatusServiceUnavailable, nil)
	}

	primaryRes, primaryErr := m.primary.Translate(ctx, req)
	if primaryErr == nil {
		m.circuitBreaker.RecordSuccess()
		return primaryRes, nil
	}

	if m.enableFallback && m.fallback != nil {
		m.logger.Warn("Primary translation failed, trying fallback",
			zap.String("primary", m.primary.Name()),
			zap.String("fallback", m.fallback.Name()),
			zap.Error(primaryErr),
		)

		fallbackRes, fallbackErr := m.fallback.Translate(ctx, req)
		if fallbackErr == nil {
			m.circuitBreaker.RecordSuccess()
			fallbackRes.UsedFallback = true
			return fallbackRes, nil
		}

		m.recordFailure(primaryErr)
		m.recordFailure(fallbackErr)

		if m.isServiceFailure(primaryErr) || m.isServiceFailure(fallbackErr) {
			return nil, errors.NewProviderError("translation providers are temporarily unavailable", m.fallback.Name(), http.StatusServiceUnavailable, fallbackErr)
		}

		return nil, fallbackErr
	}

	m.recordFailure(primaryErr)

	if m.isServiceFailure(primaryErr) {
		return nil, errors.NewProviderError("translation provider is temporarily unavailable", m.primary.Name(), http.StatusServiceUnavailable, primaryErr)
	}

	return nil, primaryErr
}

func (m *Manager) recordFailure(err error) {
	if err == nil {
		return
	}

	if !m.isServiceFailure(err) {
		return
	}

	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if m.isRateLimitError(err) {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}

	m.circuitBreaker.RecordFailure(timeout)
}

func (m *Manager) healthCheckPing() bool {
	m.logger.Info("Health Check: Testing translation providers...")

	ctx, cancel := context.WithTimeout(context.Background(), constants.CircuitBreakerConfig.HealthCheckTimeout)
	defer cancel()

	primaryOK := false
	if m.primary != nil {
		primaryOK = m.primary.Ping(ctx)
	}

	fallbackOK := false
	if m.enableFallback && m.fallback != nil {
		fallbackOK = m.fallback.Ping(ctx)
	}

	isHealthy := primaryOK || fallbackOK

	m.logger.Info("Health Check: Result",
		zap.Bool("primary", primaryOK),
		zap.Bool("fallback", fallbackOK),
		zap.Bool("healthy", isHealthy),
	)

	return isHealthy
}

func (m *Manager) isServiceFailure(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	if strings.Contains(msg, "timeout") || strings.Contains(msg, "ETIMEDOUT") {
		return true
	}

	if m.isRateLimitError(err) {
		return true
	}

	statusRegex := regexp.MustCompile(`\b(5\d{2})\b`)
	if statusRegex.MatchString(msg) {
		return true
	}

	geminiCodeRegex := regexp.MustCompile(`"code":(\d{3})`)
	if matches := geminiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, err := strconv.Atoi(matches[1]); err == nil {
			return code >= 500 && code < 600
		}
	}

	openaiCodeRegex := regexp.MustCompile(`^(\d{3})\s`)
	if matches := openaiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, err := strconv.Atoi(matches[1]); err == nil {
			return code >= 500 && code < 600
		}
	}

	return false
}

func (m *Manager) isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	if strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") || strings.Contains(msg, "quota") {
		return true
	}

	geminiCodeRegex := regexp.MustCompile(`"code":(\d{3})`)
	if matches := geminiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, err := strconv.Atoi(matches[1]); err == nil {
			return code == 429
		}
	}

	openaiCodeRegex := regexp.MustCompile(`^(\d{3})\s`)
	if matches := openaiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, err := strconv.Atoi(matches[1]); err == nil {
			return code == 429
		}
	}

	return false
}

func (m *Manager) GetCircuitStatus() util.CircuitBreakerStatus {
	return m.circuitBreaker.GetStatus()
}

func (m *Manager) ResetCircuit() {
	m.circuitBreaker.Reset()
}
