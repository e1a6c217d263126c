package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeTranslation       = "TRANSLATION_ERROR"
	CodeValidation        = "VALIDATION_ERROR"
	CodeDatabase          = "DATABASE_ERROR"
	CodeCache             = "CACHE_ERROR"
	CodeSchema            = "SCHEMA_ERROR"
	CodeProvider          = "PROVIDER_ERROR"
	CodeAlreadyRegistered = "ALREADY_REGISTERED"
	CodeNotRegistered     = "NOT_REGISTERED"
	CodeUnsupportedLookup = "UNSUPPORTED_LOOKUP"
)

type TranslationError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

func NewTranslationError(message, code string, statusCode int, context map[string]any) *TranslationError {
	return &TranslationError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *TranslationError) WithCause(cause error) *TranslationError {
	e.Cause = cause
	return e
}

type ValidationError struct {
	*TranslationError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		TranslationError: &TranslationError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

func (e *ValidationError) Unwrap() error { return e.TranslationError }

type DatabaseError struct {
	*TranslationError
	Operation string
	Table     string
}

func NewDatabaseError(message, operation, table string, cause error) *DatabaseError {
	return &DatabaseError{
		TranslationError: &TranslationError{
			Message:    message,
			Code:       CodeDatabase,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"table":     table,
			},
			Cause: cause,
		},
		Operation: operation,
		Table:     table,
	}
}

func (e *DatabaseError) Unwrap() error { return e.TranslationError }

type CacheError struct {
	*TranslationError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		TranslationError: &TranslationError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

func (e *CacheError) Unwrap() error { return e.TranslationError }

type SchemaError struct {
	*TranslationError
	Table  string
	Column string
}

func NewSchemaError(message, table, column string, cause error) *SchemaError {
	return &SchemaError{
		TranslationError: &TranslationError{
			Message:    message,
			Code:       CodeSchema,
			StatusCode: 500,
			Context: map[string]any{
				"table":  table,
				"column": column,
			},
			Cause: cause,
		},
		Table:  table,
		Column: column,
	}
}

func (e *SchemaError) Unwrap() error { return e.TranslationError }

type ProviderError struct {
	*TranslationError
	Provider string
}

func NewProviderError(message, provider string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		TranslationError: &TranslationError{
			Message:    message,
			Code:       CodeProvider,
			StatusCode: statusCode,
			Context: map[string]any{
				"provider": provider,
			},
			Cause: cause,
		},
		Provider: provider,
	}
}

func (e *ProviderError) Unwrap() error { return e.TranslationError }

type AlreadyRegisteredError struct {
	*TranslationError
	Table string
}

func NewAlreadyRegisteredError(table string) *AlreadyRegisteredError {
	return &AlreadyRegisteredError{
		TranslationError: &TranslationError{
			Message:    fmt.Sprintf("model %q is already registered for translation", table),
			Code:       CodeAlreadyRegistered,
			StatusCode: 409,
			Context:    map[string]any{"table": table},
		},
		Table: table,
	}
}

func (e *AlreadyRegisteredError) Unwrap() error { return e.TranslationError }

type NotRegisteredError struct {
	*TranslationError
	Table string
}

func NewNotRegisteredError(table string) *NotRegisteredError {
	return &NotRegisteredError{
		TranslationError: &TranslationError{
			Message:    fmt.Sprintf("model %q is not registered for translation", table),
			Code:       CodeNotRegistered,
			StatusCode: 404,
			Context:    map[string]any{"table": table},
		},
		Table: table,
	}
}

func (e *NotRegisteredError) Unwrap() error { return e.TranslationError }

type UnsupportedLookupError struct {
	*TranslationError
	Lookup string
}

func NewUnsupportedLookupError(message, lookup string) *UnsupportedLookupError {
	return &UnsupportedLookupError{
		TranslationError: &TranslationError{
			Message:    message,
			Code:       CodeUnsupportedLookup,
			StatusCode: 400,
			Context:    map[string]any{"lookup": lookup},
		},
		Lookup: lookup,
	}
}

func (e *UnsupportedLookupError) Unwrap() error { return e.TranslationError }

// GetCode extracts the error code from any error in the chain, or
// CodeTranslation when the chain carries no typed error.
func GetCode(err error) string {
	var te *TranslationError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return CodeTranslation
}

// HTTPStatus maps an error chain to an HTTP status code, defaulting to 500.
func HTTPStatus(err error) int {
	var te *TranslationError
	if stderrors.As(err, &te) && te.StatusCode > 0 {
		return te.StatusCode
	}
	return 500
}

func IsAlreadyRegistered(err error) bool {
	var are *AlreadyRegisteredError
	return stderrors.As(err, &are)
}

func IsNotRegistered(err error) bool {
	var nre *NotRegisteredError
	return stderrors.As(err, &nre)
}
