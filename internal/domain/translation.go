package domain

// TranslationKind tells providers how to treat the payload.
type TranslationKind string

const (
	TranslationKindText TranslationKind = "text"
	TranslationKindHTML TranslationKind = "html"
)

type TranslationRequest struct {
	Text       string            `json:"text"`
	SourceLang string            `json:"sourceLang"`
	TargetLang string            `json:"targetLang"`
	Kind       TranslationKind   `json:"kind"`
	Glossary   map[string]string `json:"glossary,omitempty"`
}

type TranslationResult struct {
	Text         string `json:"text"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	UsedFallback bool   `json:"usedFallback"`
}

// SlotRef identifies one translation slot of one record, the unit of work
// for machine-translation backfill.
type SlotRef struct {
	Table    string `json:"table"`
	PK       int64  `json:"pk"`
	Field    string `json:"field"`
	Language string `json:"language"`
}
