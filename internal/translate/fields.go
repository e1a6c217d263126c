package translate

import (
	"strings"

	"github.com/kapu/modeltrans-go/internal/schema"
)

// LocalizedFieldName returns the per-language name of a translated field:
// "title" with "de" becomes "title_de", "title" with "pt-br" becomes
// "title_pt_br".
func LocalizedFieldName(name, code string) string {
	return name + "_" + strings.ReplaceAll(code, "-", "_")
}

// localizedField builds the expansion field for one base field and language.
// Type, length and nullability carry over from the base column; only the
// name, column and translation markers differ.
func localizedField(base schema.Field, code string) schema.Field {
	return schema.Field{
		Name:        LocalizedFieldName(base.Name, code),
		Column:      LocalizedFieldName(base.Column, code),
		Kind:        base.Kind,
		Nullable:    base.Nullable,
		MaxLen:      base.MaxLen,
		Translation: true,
		Language:    code,
		BaseField:   base.Name,
	}
}

// fieldDefault is the value a translated read falls through to when no slot
// is defined: the empty string for non-nullable string kinds, nil otherwise.
func fieldDefault(f schema.Field) any {
	if f.Nullable {
		return nil
	}
	switch f.Kind {
	case schema.KindString, schema.KindText:
		return ""
	}
	return nil
}
