package store

import (
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/translate"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

func newQueryRegistry(t *testing.T) *translate.Registry {
	t.Helper()
	resolver, err := lang.NewResolver([]string{"de", "en", "pt-br"}, "de", true, nil)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	registry := translate.NewRegistry(resolver, zap.NewNop())
	model := schema.NewModel("articles",
		schema.Field{Name: "title", Kind: schema.KindString, MaxLen: 200},
		schema.Field{Name: "body", Kind: schema.KindText, Nullable: true},
		schema.Field{Name: "views", Kind: schema.KindInt},
	)
	if err := registry.Register(model, translate.Options{Fields: []string{"title", "body"}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return registry
}

func TestSplitKey(t *testing.T) {
	cases := []struct {
		key   string
		field string
		op    string
	}{
		{"title", "title", OpEq},
		{"title__icontains", "title", OpIContains},
		{"views__gte", "views", OpGte},
		{"title_pt_br", "title_pt_br", OpEq},
		{"title__bogus", "title__bogus", OpEq},
	}

	for _, tc := range cases {
		field, op := SplitKey(tc.key)
		if field != tc.field || op != tc.op {
			t.Errorf("SplitKey(%q) = (%q, %q), want (%q, %q)", tc.key, field, op, tc.field, tc.op)
		}
	}
}

func TestRewriteKey(t *testing.T) {
	reg := newQueryRegistry(t)

	cases := []struct {
		key  string
		lang string
		want string
	}{
		{"title", "de", "title_de"},
		{"title__icontains", "de", "title_de__icontains"},
		{"title", "pt-br", "title_pt_br"},
		{"views", "de", "views"},
		{"views__gte", "de", "views__gte"},
		{"unknown", "de", "unknown"},
	}

	for _, tc := range cases {
		if got := RewriteKey(reg, "articles", tc.key, tc.lang); got != tc.want {
			t.Errorf("RewriteKey(%q, %q) = %q, want %q", tc.key, tc.lang, got, tc.want)
		}
	}
}

func TestConditionSimple(t *testing.T) {
	reg := newQueryRegistry(t)
	q := Query{Table: "articles"}

	c := newCompiler(reg, schema.DialectSQLite, q, "de")
	sql, err := c.condition(Cond{Key: "views__gte", Value: 10}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}
	if sql != `"views" >= ?` {
		t.Errorf("unexpected sql: %s", sql)
	}
	if len(c.args) != 1 || c.args[0] != 10 {
		t.Errorf("unexpected args: %v", c.args)
	}

	pg := newCompiler(reg, schema.DialectPostgres, q, "de")
	sql, err = pg.condition(Cond{Key: "views__gte", Value: 10}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}
	if sql != `"views" >= $1` {
		t.Errorf("unexpected postgres sql: %s", sql)
	}
}

func TestConditionRewritesActiveSlot(t *testing.T) {
	reg := newQueryRegistry(t)
	off := false
	q := Query{Table: "articles", Fallbacks: &off}

	c := newCompiler(reg, schema.DialectSQLite, q, "en")
	sql, err := c.condition(Cond{Key: "title", Value: "Cat"}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}
	if sql != `"title_en" = ?` {
		t.Errorf("unexpected sql: %s", sql)
	}
}

func TestConditionFallbackPredicate(t *testing.T) {
	reg := newQueryRegistry(t)
	q := Query{Table: "articles"}

	// Active en resolves through [en de]; the predicate tests the first
	// defined slot and only that one.
	c := newCompiler(reg, schema.DialectSQLite, q, "en")
	sql, err := c.condition(Cond{Key: "title__icontains", Value: "hund"}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}

	want := `((("title_en" IS NOT NULL AND "title_en" <> '') AND "title_en" LIKE '%' || ? || '%') OR (("title_en" IS NULL OR "title_en" = '') AND ("title_de" LIKE '%' || ? || '%')))`
	if sql != want {
		t.Errorf("unexpected sql:\n got %s\nwant %s", sql, want)
	}
	if len(c.args) != 2 {
		t.Errorf("expected the value bound per branch, got %v", c.args)
	}
}

func TestConditionNumericFallbackGuards(t *testing.T) {
	reg := newQueryRegistry(t)

	model := schema.NewModel("stats",
		schema.Field{Name: "score", Kind: schema.KindInt, Nullable: true},
	)
	if err := reg.Register(model, translate.Options{Fields: []string{"score"}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	c := newCompiler(reg, schema.DialectSQLite, Query{Table: "stats"}, "en")
	sql, err := c.condition(Cond{Key: "score__gte", Value: 5}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}

	// Numeric slots only use IS NULL for the defined check.
	want := `(("score_en" IS NOT NULL AND "score_en" >= ?) OR ("score_en" IS NULL AND ("score_de" >= ?)))`
	if sql != want {
		t.Errorf("unexpected sql:\n got %s\nwant %s", sql, want)
	}
}

func TestConditionIsnullNeedsFallbacksOff(t *testing.T) {
	reg := newQueryRegistry(t)

	c := newCompiler(reg, schema.DialectSQLite, Query{Table: "articles"}, "en")
	_, err := c.condition(Cond{Key: "title__isnull", Value: true}, true)
	if errors.GetCode(err) != errors.CodeUnsupportedLookup {
		t.Fatalf("expected unsupported lookup, got %v", err)
	}

	off := false
	c = newCompiler(reg, schema.DialectSQLite, Query{Table: "articles", Fallbacks: &off}, "en")
	sql, err := c.condition(Cond{Key: "title__isnull", Value: false}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}
	if sql != `"title_en" IS NOT NULL` {
		t.Errorf("unexpected sql: %s", sql)
	}
}

func TestConditionRegexDialect(t *testing.T) {
	reg := newQueryRegistry(t)
	off := false

	c := newCompiler(reg, schema.DialectSQLite, Query{Table: "articles", Fallbacks: &off}, "de")
	if _, err := c.condition(Cond{Key: "title__regex", Value: "^K"}, true); errors.GetCode(err) != errors.CodeUnsupportedLookup {
		t.Fatalf("sqlite regex should be rejected, got %v", err)
	}

	pg := newCompiler(reg, schema.DialectPostgres, Query{Table: "articles", Fallbacks: &off}, "de")
	sql, err := pg.condition(Cond{Key: "title__regex", Value: "^K"}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}
	if sql != `"title_de" ~ $1` {
		t.Errorf("unexpected sql: %s", sql)
	}
}

func TestConditionColumnReference(t *testing.T) {
	reg := newQueryRegistry(t)
	off := false

	c := newCompiler(reg, schema.DialectSQLite, Query{Table: "articles", Fallbacks: &off}, "en")
	sql, err := c.condition(Cond{Key: "title", Value: F("body")}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}
	// Both sides resolve to the active language's slot.
	if sql != `"title_en" = "body_en"` {
		t.Errorf("unexpected sql: %s", sql)
	}
}

func TestConditionUnknownField(t *testing.T) {
	reg := newQueryRegistry(t)

	c := newCompiler(reg, schema.DialectSQLite, Query{Table: "articles"}, "de")
	if _, err := c.condition(Cond{Key: "nope", Value: 1}, true); err == nil {
		t.Fatal("unknown field must be rejected")
	}
}

func TestOrderByRewrite(t *testing.T) {
	reg := newQueryRegistry(t)
	q := Query{Table: "articles", OrderBy: []string{"-title", "views"}}

	c := newCompiler(reg, schema.DialectSQLite, q, "en")
	sql, err := c.orderBy(q, true)
	if err != nil {
		t.Fatalf("orderBy failed: %v", err)
	}
	if sql != `"title_en" DESC, "views" ASC` {
		t.Errorf("unexpected sql: %s", sql)
	}

	bad := Query{Table: "articles", OrderBy: []string{"nope"}}
	if _, err := c.orderBy(bad, true); err == nil {
		t.Fatal("unknown order field must be rejected")
	}
}

func TestInLookup(t *testing.T) {
	reg := newQueryRegistry(t)
	off := false

	c := newCompiler(reg, schema.DialectSQLite, Query{Table: "articles", Fallbacks: &off}, "de")
	sql, err := c.condition(Cond{Key: "views__in", Value: []int{1, 2, 3}}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}
	if sql != `"views" IN (?, ?, ?)` {
		t.Errorf("unexpected sql: %s", sql)
	}

	sql, err = c.condition(Cond{Key: "views__in", Value: []int{}}, true)
	if err != nil {
		t.Fatalf("condition failed: %v", err)
	}
	if sql != "1 = 0" {
		t.Errorf("empty in should never match: %s", sql)
	}
}
