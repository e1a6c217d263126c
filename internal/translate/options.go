package translate

// Options configures translation for one registered model.
type Options struct {
	// Fields names the model fields that get one storage slot per language.
	Fields []string

	// RequiredLanguages maps a field name (or "*" for every field) to the
	// languages that must be populated. Drives the "required" populate mode
	// and create-time validation.
	RequiredLanguages map[string][]string

	// FallbackLanguages overrides the resolver's chains for this model. Keys
	// are language codes or "default".
	FallbackLanguages map[string][]string

	// FallbackValues maps a field to the value returned when every slot is
	// undefined and fallbacks are enabled.
	FallbackValues map[string]any

	// FallbackUndefined overrides, per field, the marker meaning "no
	// translation stored". Defaults to the field's zero default.
	FallbackUndefined map[string]any
}

func (o Options) requiredFor(field string) []string {
	if o.RequiredLanguages == nil {
		return nil
	}
	langs := make([]string, 0)
	langs = append(langs, o.RequiredLanguages["*"]...)
	langs = append(langs, o.RequiredLanguages[field]...)
	return langs
}

func (o Options) hasField(name string) bool {
	for _, f := range o.Fields {
		if f == name {
			return true
		}
	}
	return false
}
