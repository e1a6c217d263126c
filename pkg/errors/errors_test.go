package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestTranslationErrorMessage(t *testing.T) {
	base := NewTranslationError("resolve failed", CodeTranslation, 500, nil)
	if base.Error() != "resolve failed" {
		t.Errorf("unexpected message: %q", base.Error())
	}

	cause := stderrors.New("connection refused")
	withCause := NewTranslationError("resolve failed", CodeTranslation, 500, nil).WithCause(cause)
	if withCause.Error() != "resolve failed: connection refused" {
		t.Errorf("unexpected message with cause: %q", withCause.Error())
	}
	if !stderrors.Is(withCause, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", NewValidationError("bad field", "title", nil), CodeValidation},
		{"database", NewDatabaseError("query failed", "select", "articles", nil), CodeDatabase},
		{"cache", NewCacheError("get failed", "get", "record:articles:1:de", nil), CodeCache},
		{"schema", NewSchemaError("alter failed", "articles", "title_de", nil), CodeSchema},
		{"provider", NewProviderError("upstream failed", "gemini", 502, nil), CodeProvider},
		{"already registered", NewAlreadyRegisteredError("articles"), CodeAlreadyRegistered},
		{"not registered", NewNotRegisteredError("articles"), CodeNotRegistered},
		{"unsupported lookup", NewUnsupportedLookupError("isnull with fallbacks", "isnull"), CodeUnsupportedLookup},
		{"plain error", stderrors.New("boom"), CodeTranslation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetCodeWrapped(t *testing.T) {
	err := fmt.Errorf("register articles: %w", NewAlreadyRegisteredError("articles"))
	if got := GetCode(err); got != CodeAlreadyRegistered {
		t.Errorf("GetCode() through wrap = %q, want %q", got, CodeAlreadyRegistered)
	}
	if !IsAlreadyRegistered(err) {
		t.Error("IsAlreadyRegistered should see through fmt.Errorf wrapping")
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(NewNotRegisteredError("articles")); got != 404 {
		t.Errorf("HTTPStatus(not registered) = %d, want 404", got)
	}
	if got := HTTPStatus(NewValidationError("bad", "f", nil)); got != 400 {
		t.Errorf("HTTPStatus(validation) = %d, want 400", got)
	}
	if got := HTTPStatus(stderrors.New("boom")); got != 500 {
		t.Errorf("HTTPStatus(plain) = %d, want 500", got)
	}
}

func TestIsNotRegistered(t *testing.T) {
	if IsNotRegistered(NewAlreadyRegisteredError("articles")) {
		t.Error("already-registered error should not match IsNotRegistered")
	}
	if !IsNotRegistered(NewNotRegisteredError("articles")) {
		t.Error("expected match for NotRegisteredError")
	}
}
