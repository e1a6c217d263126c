package mt

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/util"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

type fakeProvider struct {
	name  string
	calls int
	fn    func(req domain.TranslationRequest) (*domain.TranslationResult, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Ping(ctx context.Context) bool { return false }

func (f *fakeProvider) Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error) {
	f.calls++
	return f.fn(req)
}

func okProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, fn: func(req domain.TranslationRequest) (*domain.TranslationResult, error) {
		return &domain.TranslationResult{Text: name + ":" + req.Text, Provider: name}, nil
	}}
}

func failingProvider(name, msg string) *fakeProvider {
	return &fakeProvider{name: name, fn: func(domain.TranslationRequest) (*domain.TranslationResult, error) {
		return nil, fmt.Errorf("%s", msg)
	}}
}

func TestManagerPrimarySuccess(t *testing.T) {
	primary := okProvider("Gemini")
	m := NewManager(primary, nil, zap.NewNop())

	res, err := m.Translate(context.Background(), domain.TranslationRequest{Text: "Hund", TargetLang: "en"})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.Text != "Gemini:Hund" || res.UsedFallback {
		t.Errorf("unexpected result: %+v", res)
	}
	if primary.calls != 1 {
		t.Errorf("primary called %d times", primary.calls)
	}
}

func TestManagerFallsBack(t *testing.T) {
	primary := failingProvider("Gemini", "503 Service Unavailable")
	fallback := okProvider("OpenAI")
	m := NewManager(primary, fallback, zap.NewNop())

	res, err := m.Translate(context.Background(), domain.TranslationRequest{Text: "Hund", TargetLang: "en"})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if !res.UsedFallback || res.Provider != "OpenAI" {
		t.Errorf("unexpected result: %+v", res)
	}

	status := m.GetCircuitStatus()
	if status.State != util.CircuitStateClosed || status.FailureCount != 0 {
		t.Errorf("fallback success should keep the circuit closed: %+v", status)
	}
}

func TestManagerWrapsServiceFailures(t *testing.T) {
	primary := failingProvider("Gemini", "503 Service Unavailable")
	fallback := failingProvider("OpenAI", "502 Bad Gateway")
	m := NewManager(primary, fallback, zap.NewNop())

	_, err := m.Translate(context.Background(), domain.TranslationRequest{Text: "Hund", TargetLang: "en"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.GetCode(err) != errors.CodeProvider {
		t.Errorf("unexpected code %s", errors.GetCode(err))
	}
	if !strings.Contains(err.Error(), "temporarily unavailable") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !isRecoverableError(err) {
		t.Error("wrapped service failure should be retryable")
	}
}

func TestManagerCircuitOpens(t *testing.T) {
	primary := failingProvider("Gemini", "503 Service Unavailable")
	m := NewManager(primary, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Translate(ctx, domain.TranslationRequest{Text: "Hund", TargetLang: "en"}); err == nil {
			t.Fatal("expected an error")
		}
	}
	if status := m.GetCircuitStatus(); status.State != util.CircuitStateOpen {
		t.Fatalf("circuit should be open: %+v", status)
	}

	_, err := m.Translate(ctx, domain.TranslationRequest{Text: "Hund", TargetLang: "en"})
	if errors.GetCode(err) != errors.CodeProvider || !strings.Contains(err.Error(), "next retry at") {
		t.Errorf("unexpected rejection: %v", err)
	}
	if isRecoverableError(err) {
		t.Error("circuit rejection should not be retryable")
	}
	if primary.calls != 3 {
		t.Errorf("open circuit should not reach the provider, calls = %d", primary.calls)
	}
}

func TestManagerRateLimitSetsLongTimeout(t *testing.T) {
	primary := failingProvider("Gemini", "429 Too Many Requests")
	m := NewManager(primary, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Translate(ctx, domain.TranslationRequest{Text: "Hund", TargetLang: "en"})
	}

	status := m.GetCircuitStatus()
	if status.State != util.CircuitStateOpen {
		t.Fatalf("circuit should be open: %+v", status)
	}
	if status.NextRetryTime == nil || !status.NextRetryTime.After(time.Now().Add(30*time.Minute)) {
		t.Errorf("rate limit should push the retry far out: %+v", status.NextRetryTime)
	}
}

func TestManagerNonServiceErrorsDontTrip(t *testing.T) {
	primary := failingProvider("Gemini", "invalid JSON response")
	m := NewManager(primary, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := m.Translate(ctx, domain.TranslationRequest{Text: "Hund", TargetLang: "en"}); err == nil {
			t.Fatal("expected an error")
		}
	}

	status := m.GetCircuitStatus()
	if status.State != util.CircuitStateClosed || status.FailureCount != 0 {
		t.Errorf("malformed responses should not trip the circuit: %+v", status)
	}
	if primary.calls != 4 {
		t.Errorf("every call should reach the provider, calls = %d", primary.calls)
	}
}

func TestManagerFromConfigRequiresProvider(t *testing.T) {
	_, err := NewManagerFromConfig(context.Background(), ManagerConfig{}, zap.NewNop())
	if errors.GetCode(err) != errors.CodeProvider {
		t.Errorf("unexpected error: %v", err)
	}
}
