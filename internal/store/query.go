package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/translate"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

// F marks a condition value as a column reference instead of a literal, for
// column-to-column comparisons like Cond{"title", F("title_en")}.
type F string

// Cond is one filter condition. Key is a field name with an optional lookup
// suffix ("title", "title__icontains", "views__gte").
type Cond struct {
	Key   string
	Value any
}

// Query describes a record listing. Keys naming translated fields are mapped
// onto the active language's slot columns unless Raw is set, in which case
// keys are used verbatim as column names; Fallbacks overrides the
// resolver-wide fallback switch for this query only.
type Query struct {
	Table     string
	Conds     []Cond
	OrderBy   []string
	Limit     int
	Offset    int
	Raw       bool
	Fallbacks *bool
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// compiler renders one query's WHERE and ORDER BY fragments, accumulating
// bind arguments as it goes.
type compiler struct {
	dialect   schema.Dialect
	resolver  *lang.Resolver
	model     *schema.Model
	opts      *translate.Options
	registry  *translate.Registry
	table     string
	active    string
	fallbacks bool
	args      []any
}

func newCompiler(reg *translate.Registry, dialect schema.Dialect, q Query, active string) *compiler {
	c := &compiler{
		dialect:   dialect,
		resolver:  reg.Resolver(),
		registry:  reg,
		table:     q.Table,
		active:    active,
		fallbacks: reg.Resolver().FallbacksEnabled(),
	}
	if mt, err := reg.OptionsFor(q.Table); err == nil {
		c.model = mt.Model
		c.opts = &mt.Options
	}
	if q.Fallbacks != nil {
		c.fallbacks = *q.Fallbacks
	}
	return c
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	if c.dialect == schema.DialectPostgres {
		return fmt.Sprintf("$%d", len(c.args))
	}
	return "?"
}

func (c *compiler) like(insensitive bool) string {
	if insensitive && c.dialect == schema.DialectPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

// where renders all conditions joined with AND. An empty string means no
// WHERE clause.
func (c *compiler) where(q Query, rewrite bool) (string, error) {
	parts := make([]string, 0, len(q.Conds))
	for _, cond := range q.Conds {
		sql, err := c.condition(cond, rewrite)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, " AND "), nil
}

func (c *compiler) condition(cond Cond, rewrite bool) (string, error) {
	field, op := SplitKey(cond.Key)

	translated := rewrite && c.registry.IsTranslatedField(c.table, field)
	if !translated {
		kind := schema.KindText
		switch {
		case c.model != nil && field == c.model.PKName:
			kind = schema.KindInt
		case c.model != nil:
			f, ok := c.model.Field(field)
			if !ok {
				return "", errors.NewValidationError("unknown field in condition", field, cond.Key)
			}
			kind = f.Kind
			field = f.Column
		case !identRe.MatchString(field):
			return "", errors.NewValidationError("invalid field name", field, cond.Key)
		}
		return c.predicate(field, kind, op, cond.Value)
	}

	base, _ := c.model.Field(field)

	if !c.fallbacks {
		slot := translate.LocalizedFieldName(field, c.active)
		return c.predicate(slot, base.Kind, op, cond.Value)
	}

	if op == OpIsNull {
		return "", errors.NewUnsupportedLookupError(
			"isnull cannot be combined with language fallbacks", cond.Key)
	}

	var override map[string][]string
	if c.opts != nil {
		override = c.opts.FallbackLanguages
	}
	order := c.resolver.ResolutionOrder(c.active, override)

	pred, err := c.fallbackPredicate(base, order, op, cond.Value)
	if err != nil {
		return "", err
	}
	if len(order) > 1 {
		pred = "(" + pred + ")"
	}
	return pred, nil
}

// fallbackPredicate tests the condition against the first language whose slot
// holds a defined value. The last language in the chain is tested without a
// defined guard so the predicate stays total.
func (c *compiler) fallbackPredicate(base schema.Field, order []string, op string, value any) (string, error) {
	slot := translate.LocalizedFieldName(base.Name, order[0])
	pred, err := c.predicate(slot, base.Kind, op, value)
	if err != nil {
		return "", err
	}
	if len(order) == 1 {
		return pred, nil
	}

	rest, err := c.fallbackPredicate(base, order[1:], op, value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s AND %s) OR (%s AND (%s))",
		c.definedSQL(slot, base.Kind), pred,
		c.undefinedSQL(slot, base.Kind), rest,
	), nil
}

// definedSQL tests that a slot carries a real value. Empty strings count as
// undefined for text-like columns, matching accessor resolution.
func (c *compiler) definedSQL(column string, kind schema.Kind) string {
	col := schema.QuoteName(column, c.dialect)
	if kind == schema.KindString || kind == schema.KindText {
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", col, col)
	}
	return col + " IS NOT NULL"
}

func (c *compiler) undefinedSQL(column string, kind schema.Kind) string {
	col := schema.QuoteName(column, c.dialect)
	if kind == schema.KindString || kind == schema.KindText {
		return fmt.Sprintf("(%s IS NULL OR %s = '')", col, col)
	}
	return col + " IS NULL"
}

func (c *compiler) predicate(column string, kind schema.Kind, op string, value any) (string, error) {
	col := schema.QuoteName(column, c.dialect)

	if ref, ok := value.(F); ok {
		return c.columnPredicate(col, op, string(ref))
	}

	switch op {
	case OpEq:
		if value == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + c.bind(value), nil
	case OpNe:
		if value == nil {
			return col + " IS NOT NULL", nil
		}
		return col + " <> " + c.bind(value), nil
	case OpLt:
		return col + " < " + c.bind(value), nil
	case OpLte:
		return col + " <= " + c.bind(value), nil
	case OpGt:
		return col + " > " + c.bind(value), nil
	case OpGte:
		return col + " >= " + c.bind(value), nil
	case OpContains:
		return col + " " + c.like(false) + " '%' || " + c.bind(value) + " || '%'", nil
	case OpIContains:
		return col + " " + c.like(true) + " '%' || " + c.bind(value) + " || '%'", nil
	case OpStartsWith:
		return col + " " + c.like(false) + " " + c.bind(value) + " || '%'", nil
	case OpIStartsWith:
		return col + " " + c.like(true) + " " + c.bind(value) + " || '%'", nil
	case OpEndsWith:
		return col + " " + c.like(false) + " '%' || " + c.bind(value), nil
	case OpIEndsWith:
		return col + " " + c.like(true) + " '%' || " + c.bind(value), nil
	case OpIn:
		vals, err := expandSlice(value)
		if err != nil {
			return "", errors.NewValidationError("in lookup requires a slice", column, value)
		}
		if len(vals) == 0 {
			return "1 = 0", nil
		}
		placeholders := make([]string, len(vals))
		for i, v := range vals {
			placeholders[i] = c.bind(v)
		}
		return col + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	case OpIsNull:
		want, ok := value.(bool)
		if !ok {
			return "", errors.NewValidationError("isnull requires a bool", column, value)
		}
		if want {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	case OpRegex:
		if c.dialect != schema.DialectPostgres {
			return "", errors.NewUnsupportedLookupError("regex lookups require postgres", op)
		}
		return col + " ~ " + c.bind(value), nil
	}
	return "", errors.NewUnsupportedLookupError("unknown lookup", op)
}

// columnPredicate compares two columns. References to translated fields
// resolve to the active language's slot.
func (c *compiler) columnPredicate(left, op, ref string) (string, error) {
	field := ref
	if c.registry.IsTranslatedField(c.table, field) {
		field = translate.LocalizedFieldName(field, c.active)
	}
	if c.model != nil {
		if !c.model.HasColumn(field) {
			return "", errors.NewValidationError("unknown column reference", ref, nil)
		}
	} else if !identRe.MatchString(field) {
		return "", errors.NewValidationError("invalid column reference", ref, nil)
	}
	right := schema.QuoteName(field, c.dialect)

	switch op {
	case OpEq:
		return left + " = " + right, nil
	case OpNe:
		return left + " <> " + right, nil
	case OpLt:
		return left + " < " + right, nil
	case OpLte:
		return left + " <= " + right, nil
	case OpGt:
		return left + " > " + right, nil
	case OpGte:
		return left + " >= " + right, nil
	}
	return "", errors.NewUnsupportedLookupError("column references support comparison lookups only", op)
}

// orderBy renders the ORDER BY fragment. Translated field names map onto the
// active language's slot when rewriting; no fallback expansion happens here.
func (c *compiler) orderBy(q Query, rewrite bool) (string, error) {
	if len(q.OrderBy) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(q.OrderBy))
	for _, entry := range q.OrderBy {
		dir := "ASC"
		field := entry
		if strings.HasPrefix(entry, "-") {
			dir = "DESC"
			field = entry[1:]
		}

		if rewrite && c.registry.IsTranslatedField(c.table, field) {
			field = translate.LocalizedFieldName(field, c.active)
		}
		if c.model != nil {
			if !c.model.HasColumn(field) && field != c.model.PKName {
				return "", errors.NewValidationError("unknown field in ordering", field, entry)
			}
		} else if !identRe.MatchString(field) {
			return "", errors.NewValidationError("invalid field in ordering", field, entry)
		}

		parts = append(parts, schema.QuoteName(field, c.dialect)+" "+dir)
	}
	return strings.Join(parts, ", "), nil
}

func expandSlice(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []int64:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported slice type %T", value)
}
