package translate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

type modelFileField struct {
	Name     string `json:"name"`
	Column   string `json:"column,omitempty"`
	Kind     string `json:"kind"`
	Nullable bool   `json:"nullable,omitempty"`
	MaxLen   int    `json:"max_len,omitempty"`
}

type modelFileEntry struct {
	Table     string           `json:"table"`
	PK        string           `json:"pk,omitempty"`
	Fields    []modelFileField `json:"fields"`
	Translate struct {
		Fields            []string            `json:"fields"`
		RequiredLanguages map[string][]string `json:"required_languages,omitempty"`
		FallbackLanguages map[string][]string `json:"fallback_languages,omitempty"`
		FallbackValues    map[string]any      `json:"fallback_values,omitempty"`
		FallbackUndefined map[string]any      `json:"fallback_undefined,omitempty"`
	} `json:"translate"`
}

// LoadModels reads a JSON array of model descriptors and registers each one.
// This is the declarative registration path of the daemon and the tools;
// library embedders call Register directly instead.
func LoadModels(registry *Registry, r io.Reader) (int, error) {
	var entries []modelFileEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("failed to parse models file: %w", err)
	}

	for i, entry := range entries {
		if entry.Table == "" {
			return 0, errors.NewValidationError("model without table", "table", i)
		}
		if len(entry.Fields) == 0 {
			return 0, errors.NewValidationError("model without fields", "fields", entry.Table)
		}

		fields := make([]schema.Field, 0, len(entry.Fields))
		for _, f := range entry.Fields {
			if f.Name == "" {
				return 0, errors.NewValidationError("field without name", "name", entry.Table)
			}
			kind, err := schema.ParseKind(f.Kind)
			if err != nil {
				return 0, errors.NewValidationError(err.Error(), f.Name, entry.Table)
			}
			fields = append(fields, schema.Field{
				Name:     f.Name,
				Column:   f.Column,
				Kind:     kind,
				Nullable: f.Nullable,
				MaxLen:   f.MaxLen,
			})
		}

		model := schema.NewModel(entry.Table, fields...)
		if entry.PK != "" {
			model.PKName = entry.PK
		}

		opts := Options{
			Fields:            entry.Translate.Fields,
			RequiredLanguages: entry.Translate.RequiredLanguages,
			FallbackLanguages: entry.Translate.FallbackLanguages,
			FallbackValues:    entry.Translate.FallbackValues,
			FallbackUndefined: entry.Translate.FallbackUndefined,
		}
		if err := registry.Register(model, opts); err != nil {
			return 0, err
		}
	}

	return len(entries), nil
}

// LoadModelsFile opens path and registers the models declared inside.
func LoadModelsFile(registry *Registry, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open models file: %w", err)
	}
	defer f.Close()
	return LoadModels(registry, f)
}
