package schema

import (
	"strings"
	"testing"
)

func expandedArticles() *Model {
	return NewModel("articles",
		Field{Name: "title", Kind: KindString, MaxLen: 200},
		Field{Name: "title_de", Kind: KindString, MaxLen: 200, Translation: true, Language: "de", BaseField: "title"},
		Field{Name: "title_en", Kind: KindString, MaxLen: 200, Translation: true, Language: "en", BaseField: "title"},
		Field{Name: "body", Kind: KindText, Nullable: true},
		Field{Name: "body_de", Kind: KindText, Nullable: true, Translation: true, Language: "de", BaseField: "body"},
		Field{Name: "body_en", Kind: KindText, Nullable: true, Translation: true, Language: "en", BaseField: "body"},
		Field{Name: "views", Kind: KindInt},
	)
}

func TestColumnType(t *testing.T) {
	cases := []struct {
		field   Field
		dialect Dialect
		want    string
	}{
		{Field{Kind: KindString, MaxLen: 100}, DialectPostgres, "VARCHAR(100)"},
		{Field{Kind: KindString}, DialectSQLite, "VARCHAR(255)"},
		{Field{Kind: KindText}, DialectPostgres, "TEXT"},
		{Field{Kind: KindInt}, DialectSQLite, "INTEGER"},
		{Field{Kind: KindFloat}, DialectPostgres, "DOUBLE PRECISION"},
		{Field{Kind: KindFloat}, DialectSQLite, "REAL"},
		{Field{Kind: KindBool}, DialectPostgres, "BOOLEAN"},
		{Field{Kind: KindBool}, DialectSQLite, "INTEGER"},
		{Field{Kind: KindTime}, DialectPostgres, "TIMESTAMPTZ"},
		{Field{Kind: KindTime}, DialectSQLite, "TIMESTAMP"},
	}

	for _, tc := range cases {
		if got := ColumnType(tc.field, tc.dialect); got != tc.want {
			t.Errorf("ColumnType(%v, %s) = %q, want %q", tc.field.Kind, tc.dialect, got, tc.want)
		}
	}
}

func TestKindZero(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindString, "''"},
		{KindText, "''"},
		{KindInt, "0"},
		{KindFloat, "0"},
		{KindBool, "FALSE"},
	}

	for _, tc := range cases {
		if got := tc.kind.Zero(); got != tc.want {
			t.Errorf("Zero(%s) = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestTranslationFields(t *testing.T) {
	model := expandedArticles()

	all := model.TranslationFields("")
	if len(all) != 4 {
		t.Fatalf("expected 4 expansion fields, got %d", len(all))
	}

	title := model.TranslationFields("title")
	if len(title) != 2 {
		t.Fatalf("expected 2 title expansion fields, got %d", len(title))
	}
	for _, f := range title {
		if f.BaseField != "title" || !f.Translation {
			t.Errorf("unexpected expansion field: %+v", f)
		}
	}
}

func TestCreateTableStatement(t *testing.T) {
	model := expandedArticles()

	pg := CreateTableStatement(model, DialectPostgres)
	if !strings.Contains(pg, `"id" BIGSERIAL PRIMARY KEY`) {
		t.Errorf("postgres DDL missing serial pk: %s", pg)
	}
	if !strings.Contains(pg, `"title" VARCHAR(200) NOT NULL DEFAULT ''`) {
		t.Errorf("postgres DDL missing title column: %s", pg)
	}
	if strings.Contains(pg, `"body" TEXT NOT NULL`) {
		t.Errorf("nullable body must not carry NOT NULL: %s", pg)
	}

	lite := CreateTableStatement(model, DialectSQLite)
	if !strings.Contains(lite, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`) {
		t.Errorf("sqlite DDL missing autoincrement pk: %s", lite)
	}
}

func TestColumnsOrder(t *testing.T) {
	model := expandedArticles()
	cols := model.Columns()
	if cols[0] != "id" {
		t.Errorf("primary key must come first, got %q", cols[0])
	}
	if len(cols) != len(model.Fields)+1 {
		t.Errorf("expected %d columns, got %d", len(model.Fields)+1, len(cols))
	}
}
