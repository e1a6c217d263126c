package store

import (
	"strings"

	"github.com/kapu/modeltrans-go/internal/translate"
)

// Lookup operators accepted in condition keys, e.g. "title__icontains".
const (
	OpEq          = "eq"
	OpNe          = "ne"
	OpLt          = "lt"
	OpLte         = "lte"
	OpGt          = "gt"
	OpGte         = "gte"
	OpContains    = "contains"
	OpIContains   = "icontains"
	OpStartsWith  = "startswith"
	OpIStartsWith = "istartswith"
	OpEndsWith    = "endswith"
	OpIEndsWith   = "iendswith"
	OpIn          = "in"
	OpIsNull      = "isnull"
	OpRegex       = "regex"
)

var lookupOps = map[string]struct{}{
	OpEq: {}, OpNe: {}, OpLt: {}, OpLte: {}, OpGt: {}, OpGte: {},
	OpContains: {}, OpIContains: {},
	OpStartsWith: {}, OpIStartsWith: {},
	OpEndsWith: {}, OpIEndsWith: {},
	OpIn: {}, OpIsNull: {}, OpRegex: {},
}

// SplitKey splits a condition key into field name and operator. A key without
// a recognized suffix is an equality test on the whole key.
func SplitKey(key string) (field, op string) {
	if i := strings.LastIndex(key, "__"); i >= 0 {
		if _, ok := lookupOps[key[i+2:]]; ok {
			return key[:i], key[i+2:]
		}
	}
	return key, OpEq
}

// RewriteKey maps a logical field key onto the slot column for the given
// language, keeping any lookup suffix. Keys for untranslated fields pass
// through unchanged.
//
//	RewriteKey(reg, "articles", "title__icontains", "de") == "title_de__icontains"
func RewriteKey(reg *translate.Registry, table, key, language string) string {
	field, op := SplitKey(key)
	if !reg.IsTranslatedField(table, field) {
		return key
	}
	slot := translate.LocalizedFieldName(field, language)
	if op == OpEq && !strings.HasSuffix(key, "__"+OpEq) {
		return slot
	}
	return slot + "__" + op
}
