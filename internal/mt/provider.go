// Package mt machine-translates undefined translation slots. LLM providers
// and the Cloud Translation API sit behind a shared Provider interface; a
// Manager routes between a primary and a fallback behind a circuit breaker,
// and a Backfiller walks registered tables filling empty slots.
package mt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/prompt"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Provider translates one field value between two configured languages.
type Provider interface {
	Name() string
	Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error)
	Ping(ctx context.Context) bool
}

// translationPayload is the JSON answer contract shared by the LLM providers.
type translationPayload struct {
	Translations []string `json:"translations"`
}

// decodeTranslations strips markdown fences from an LLM answer and decodes
// the index-aligned translations array.
func decodeTranslations(text string, want int) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	cleaned := trimmed
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSpace(cleaned)
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var payload translationPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON from translator: %w", err)
	}

	if len(payload.Translations) != want {
		return nil, fmt.Errorf("expected %d translations, got %d", want, len(payload.Translations))
	}

	return payload.Translations, nil
}

// buildTranslatePrompt renders the prompt for one segmented request.
func buildTranslatePrompt(req domain.TranslationRequest, segments []string) (string, error) {
	name := prompt.TemplateTranslateText
	if req.Kind == domain.TranslationKindHTML {
		name = prompt.TemplateTranslateHTML
	}

	glossary := make([]prompt.GlossaryEntry, 0, len(req.Glossary))
	for _, term := range sortedTerms(req.Glossary) {
		glossary = append(glossary, prompt.GlossaryEntry{Term: term, Translation: req.Glossary[term]})
	}
	if len(glossary) > constants.MTInputLimits.MaxGlossaryTerms {
		glossary = glossary[:constants.MTInputLimits.MaxGlossaryTerms]
	}

	return prompt.BuildTranslate(name, prompt.TranslateVars{
		SourceName:       languageName(req.SourceLang),
		SourceCode:       req.SourceLang,
		TargetName:       languageName(req.TargetLang),
		TargetCode:       req.TargetLang,
		Segments:         segments,
		Glossary:         glossary,
		MaxSegmentLength: constants.MTInputLimits.MaxSegmentLength,
	})
}

func sortedTerms(glossary map[string]string) []string {
	terms := make([]string, 0, len(glossary))
	for term := range glossary {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// languageName renders a code for prompts, "de" reads better as "German".
func languageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}

// bcp47 canonicalizes a configured code for provider APIs, which expect
// "pt-BR" rather than the storage form "pt-br".
func bcp47(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return tag.String()
}
