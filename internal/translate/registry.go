// Package translate keeps the registry of translatable models and resolves
// localized reads and writes against their records.
package translate

import (
	"sync"

	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/pkg/errors"
	"go.uber.org/zap"
)

// ModelTranslation pairs a registered model with its validated options.
type ModelTranslation struct {
	Model   *schema.Model
	Options Options
}

// UndefinedMarker returns the value that means "no translation stored" for
// one of the model's translated fields: the field default, unless the options
// override it.
func (mt *ModelTranslation) UndefinedMarker(field string) any {
	if override, ok := mt.Options.FallbackUndefined[field]; ok {
		return override
	}
	base, _ := mt.Model.Field(field)
	return fieldDefault(base)
}

// Registry holds every model registered for translation. Registering a model
// expands its descriptor in place: one extra field per translated field and
// configured language.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]*ModelTranslation
	order    []string
	resolver *lang.Resolver
	logger   *zap.Logger
}

func NewRegistry(resolver *lang.Resolver, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		models:   make(map[string]*ModelTranslation),
		resolver: resolver,
		logger:   logger,
	}
}

func (r *Registry) Resolver() *lang.Resolver {
	return r.resolver
}

// Register expands the model with per-language fields and records its
// options. The model descriptor is mutated: expansion fields are inserted
// directly after their base field.
func (r *Registry) Register(model *schema.Model, opts Options) error {
	if model == nil || model.Table == "" {
		return errors.NewValidationError("model with a table name is required", "table", nil)
	}
	if len(opts.Fields) == 0 {
		return errors.NewValidationError("at least one field must be registered", "fields", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[model.Table]; exists {
		return errors.NewAlreadyRegisteredError(model.Table)
	}

	canonical, err := r.canonicalizeOptions(opts)
	if err != nil {
		return err
	}

	expanded := make([]schema.Field, 0, len(model.Fields)+len(opts.Fields)*len(r.resolver.Languages()))
	for _, f := range model.Fields {
		expanded = append(expanded, f)
		if !canonical.hasField(f.Name) {
			continue
		}
		if f.Translation {
			return errors.NewValidationError("cannot register an expansion column for translation", "fields", f.Name)
		}
		if !f.Kind.Translatable() {
			return errors.NewValidationError("field kind is not translatable", f.Name, string(f.Kind))
		}
		for _, code := range r.resolver.Languages() {
			loc := localizedField(f, code)
			if model.HasColumn(loc.Column) {
				return errors.NewSchemaError("expansion column collides with an existing column", model.Table, loc.Column, nil)
			}
			expanded = append(expanded, loc)
		}
	}

	for _, name := range canonical.Fields {
		if _, ok := model.Field(name); !ok {
			return errors.NewValidationError("registered field does not exist on the model", "fields", name)
		}
	}

	model.Fields = expanded
	mt := &ModelTranslation{Model: model, Options: canonical}
	r.models[model.Table] = mt
	r.order = append(r.order, model.Table)

	r.logger.Info("Model registered for translation",
		zap.String("table", model.Table),
		zap.Strings("fields", canonical.Fields),
		zap.Strings("languages", r.resolver.Languages()),
	)

	return nil
}

// Unregister removes the model and strips its expansion fields from the
// descriptor.
func (r *Registry) Unregister(table string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mt, exists := r.models[table]
	if !exists {
		return errors.NewNotRegisteredError(table)
	}

	restored := make([]schema.Field, 0, len(mt.Model.Fields))
	for _, f := range mt.Model.Fields {
		if f.Translation && mt.Options.hasField(f.BaseField) {
			continue
		}
		restored = append(restored, f)
	}
	mt.Model.Fields = restored

	delete(r.models, table)
	for i, t := range r.order {
		if t == table {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("Model unregistered", zap.String("table", table))
	return nil
}

// OptionsFor returns the registration for a table.
func (r *Registry) OptionsFor(table string) (*ModelTranslation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mt, exists := r.models[table]
	if !exists {
		return nil, errors.NewNotRegisteredError(table)
	}
	return mt, nil
}

func (r *Registry) IsRegistered(table string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.models[table]
	return exists
}

// Models returns the registered models in registration order.
func (r *Registry) Models() []*schema.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*schema.Model, 0, len(r.order))
	for _, table := range r.order {
		out = append(out, r.models[table].Model)
	}
	return out
}

// TranslatedFields returns the registered base field names for a table, or
// nil when the table is not registered.
func (r *Registry) TranslatedFields(table string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mt, exists := r.models[table]
	if !exists {
		return nil
	}
	out := make([]string, len(mt.Options.Fields))
	copy(out, mt.Options.Fields)
	return out
}

// IsTranslatedField reports whether field is registered for translation on
// table.
func (r *Registry) IsTranslatedField(table, field string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mt, exists := r.models[table]
	return exists && mt.Options.hasField(field)
}

func (r *Registry) canonicalizeOptions(opts Options) (Options, error) {
	out := Options{
		Fields:            make([]string, len(opts.Fields)),
		FallbackValues:    opts.FallbackValues,
		FallbackUndefined: opts.FallbackUndefined,
	}
	copy(out.Fields, opts.Fields)

	if len(opts.RequiredLanguages) > 0 {
		out.RequiredLanguages = make(map[string][]string, len(opts.RequiredLanguages))
		for field, langs := range opts.RequiredLanguages {
			canonical, err := r.canonicalizeChain(field, langs)
			if err != nil {
				return Options{}, err
			}
			out.RequiredLanguages[field] = canonical
		}
	}

	if len(opts.FallbackLanguages) > 0 {
		out.FallbackLanguages = make(map[string][]string, len(opts.FallbackLanguages))
		for key, chain := range opts.FallbackLanguages {
			canonicalKey := key
			if key != "default" {
				var ok bool
				canonicalKey, ok = r.resolver.Normalize(key)
				if !ok {
					return Options{}, errors.NewValidationError("fallback chain keyed by unknown language", "fallback_languages", key)
				}
			}
			canonical, err := r.canonicalizeChain(key, chain)
			if err != nil {
				return Options{}, err
			}
			out.FallbackLanguages[canonicalKey] = canonical
		}
	}

	return out, nil
}

func (r *Registry) canonicalizeChain(key string, chain []string) ([]string, error) {
	out := make([]string, 0, len(chain))
	for _, code := range chain {
		canonical, ok := r.resolver.Normalize(code)
		if !ok {
			return nil, errors.NewValidationError("chain references unknown language", key, code)
		}
		out = append(out, canonical)
	}
	return out, nil
}
