package translate

import (
	"context"

	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

// Accessor reads and writes translated fields on records. Reads walk the
// resolution order of the active language; writes go to the active
// language's slot only. The base column is never consulted on reads, it is
// legacy source data reachable through GetLang and the updatefields tool.
type Accessor struct {
	registry *Registry
	resolver *lang.Resolver
}

func NewAccessor(registry *Registry) *Accessor {
	return &Accessor{
		registry: registry,
		resolver: registry.Resolver(),
	}
}

// Get resolves the value of field for the context's active language.
// Unregistered tables and fields fall through to the raw record value.
func (a *Accessor) Get(ctx context.Context, rec *domain.Record, field string) any {
	value, _ := a.GetWithResolution(ctx, rec, field)
	return value
}

// GetWithResolution also reports which language actually served the value.
// Resolution.Language is empty when no slot was defined and the value is the
// field default or a configured fallback value.
func (a *Accessor) GetWithResolution(ctx context.Context, rec *domain.Record, field string) (any, domain.FieldResolution) {
	mt, err := a.registry.OptionsFor(rec.Table)
	if err != nil || !mt.Options.hasField(field) {
		raw, _ := rec.Get(field)
		return raw, domain.FieldResolution{}
	}

	marker := mt.UndefinedMarker(field)

	active := a.resolver.Active(ctx)
	for _, code := range a.resolver.ResolutionOrder(active, mt.Options.FallbackLanguages) {
		val, ok := rec.Get(LocalizedFieldName(field, code))
		if !ok {
			continue
		}
		if val != marker {
			return val, domain.FieldResolution{Language: code, FallbackUsed: code != active}
		}
	}

	if a.resolver.FallbacksEnabled() {
		if fallback, ok := mt.Options.FallbackValues[field]; ok {
			return fallback, domain.FieldResolution{FallbackUsed: true}
		}
	}

	baseField, _ := mt.Model.Field(field)
	return fieldDefault(baseField), domain.FieldResolution{}
}

// Set writes value into the active language's slot. Unregistered fields are
// written through under their own name.
func (a *Accessor) Set(ctx context.Context, rec *domain.Record, field string, value any) {
	if !a.registry.IsTranslatedField(rec.Table, field) {
		rec.Set(field, value)
		return
	}
	rec.Set(LocalizedFieldName(field, a.resolver.Active(ctx)), value)
}

// GetLang reads one explicit slot, bypassing resolution. The base column is
// addressed by passing the field's own name as code "".
func (a *Accessor) GetLang(rec *domain.Record, field, code string) (any, error) {
	if code == "" {
		val, _ := rec.Get(field)
		return val, nil
	}
	canonical, ok := a.resolver.Normalize(code)
	if !ok {
		return nil, errors.NewValidationError("unknown language", "lang", code)
	}
	if !a.registry.IsTranslatedField(rec.Table, field) {
		return nil, errors.NewValidationError("field is not registered for translation", "field", field)
	}
	val, _ := rec.Get(LocalizedFieldName(field, canonical))
	return val, nil
}

// SetLang writes one explicit slot.
func (a *Accessor) SetLang(rec *domain.Record, field, code string, value any) error {
	canonical, ok := a.resolver.Normalize(code)
	if !ok {
		return errors.NewValidationError("unknown language", "lang", code)
	}
	if !a.registry.IsTranslatedField(rec.Table, field) {
		return errors.NewValidationError("field is not registered for translation", "field", field)
	}
	rec.Set(LocalizedFieldName(field, canonical), value)
	return nil
}

// Localize renders a record for the context's active language: translated
// fields collapse to their resolved value, expansion slots are dropped, and
// per-field resolution metadata is attached.
func (a *Accessor) Localize(ctx context.Context, rec *domain.Record) *domain.LocalizedRecord {
	out := &domain.LocalizedRecord{
		Table:  rec.Table,
		PK:     rec.PK,
		Values: make(map[string]any, len(rec.Values)),
		Language: domain.LanguageMeta{
			Requested: a.resolver.Active(ctx),
			Fields:    make(map[string]domain.FieldResolution),
		},
	}

	mt, err := a.registry.OptionsFor(rec.Table)
	if err != nil {
		for k, v := range rec.Values {
			out.Values[k] = v
		}
		return out
	}

	expansion := make(map[string]bool)
	for _, f := range mt.Model.TranslationFields("") {
		expansion[f.Name] = true
	}

	for k, v := range rec.Values {
		if expansion[k] {
			continue
		}
		if mt.Options.hasField(k) {
			value, res := a.GetWithResolution(ctx, rec, k)
			out.Values[k] = value
			out.Language.Fields[k] = res
			continue
		}
		out.Values[k] = v
	}

	return out
}
