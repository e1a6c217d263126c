// Package schema describes registered models and keeps their live database
// tables in step with the configured languages.
package schema

import (
	"fmt"
	"strings"
)

// Kind is the portable column type of a model field.
type Kind string

const (
	KindString Kind = "string"
	KindText   Kind = "text"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindRef    Kind = "ref"
)

// Translatable reports whether fields of this kind may be registered for
// translation.
func (k Kind) Translatable() bool {
	switch k {
	case KindString, KindText, KindInt, KindFloat, KindBool, KindTime, KindRef:
		return true
	}
	return false
}

// ParseKind validates a configured column kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindString, KindText, KindInt, KindFloat, KindBool, KindTime, KindRef:
		return k, nil
	}
	return "", fmt.Errorf("unknown field kind %q", s)
}

// Zero returns the SQL literal used as the column default when an expansion
// column must stay NOT NULL.
func (k Kind) Zero() string {
	switch k {
	case KindString, KindText:
		return "''"
	case KindInt, KindFloat, KindRef:
		return "0"
	case KindBool:
		return "FALSE"
	default:
		return "NULL"
	}
}

// Field is one column of a model. Translation marks the auto-generated
// per-language copies of a base field; for those, Language holds the language
// code and BaseField the name of the field they localize.
type Field struct {
	Name        string `json:"name"`
	Column      string `json:"column"`
	Kind        Kind   `json:"kind"`
	Nullable    bool   `json:"nullable,omitempty"`
	MaxLen      int    `json:"max_len,omitempty"`
	Translation bool   `json:"translation,omitempty"`
	Language    string `json:"language,omitempty"`
	BaseField   string `json:"base_field,omitempty"`
}

// Model is a translatable table. Fields are ordered; expansion columns are
// appended by the registry directly after their base field.
type Model struct {
	Table  string
	PKName string
	Fields []Field
}

func NewModel(table string, fields ...Field) *Model {
	m := &Model{
		Table:  table,
		PKName: "id",
		Fields: make([]Field, 0, len(fields)),
	}
	for _, f := range fields {
		if f.Column == "" {
			f.Column = f.Name
		}
		m.Fields = append(m.Fields, f)
	}
	return m
}

// Field returns the named field.
func (m *Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasColumn reports whether any field maps to the given column.
func (m *Model) HasColumn(column string) bool {
	for _, f := range m.Fields {
		if f.Column == column {
			return true
		}
	}
	return false
}

// Columns returns every column name in field order, primary key first.
func (m *Model) Columns() []string {
	cols := make([]string, 0, len(m.Fields)+1)
	cols = append(cols, m.PKName)
	for _, f := range m.Fields {
		cols = append(cols, f.Column)
	}
	return cols
}

// TranslationFields returns the auto-generated expansion fields, optionally
// restricted to one base field.
func (m *Model) TranslationFields(baseField string) []Field {
	out := make([]Field, 0)
	for _, f := range m.Fields {
		if !f.Translation {
			continue
		}
		if baseField != "" && f.BaseField != baseField {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Dialect selects the SQL flavor for DDL generation and introspection.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ColumnType maps a field to its SQL column type for the dialect.
func ColumnType(f Field, dialect Dialect) string {
	switch f.Kind {
	case KindString:
		if f.MaxLen > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.MaxLen)
		}
		return "VARCHAR(255)"
	case KindText:
		return "TEXT"
	case KindInt, KindRef:
		return "INTEGER"
	case KindFloat:
		if dialect == DialectPostgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case KindBool:
		if dialect == DialectPostgres {
			return "BOOLEAN"
		}
		return "INTEGER"
	case KindTime:
		if dialect == DialectPostgres {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// QuoteName quotes an identifier for the dialect.
func QuoteName(name string, dialect Dialect) string {
	name = strings.ReplaceAll(name, `"`, "")
	return `"` + name + `"`
}

// CreateTableStatement renders bootstrap DDL for the model, used by fixture
// loading and tests. Production tables normally already exist; syncfields
// only adds columns.
func CreateTableStatement(m *Model, dialect Dialect) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(QuoteName(m.Table, dialect))
	b.WriteString(" (")

	if dialect == DialectPostgres {
		b.WriteString(QuoteName(m.PKName, dialect) + " BIGSERIAL PRIMARY KEY")
	} else {
		b.WriteString(QuoteName(m.PKName, dialect) + " INTEGER PRIMARY KEY AUTOINCREMENT")
	}

	for _, f := range m.Fields {
		b.WriteString(", ")
		b.WriteString(QuoteName(f.Column, dialect))
		b.WriteString(" ")
		b.WriteString(ColumnType(f, dialect))
		if !f.Nullable {
			b.WriteString(" NOT NULL DEFAULT ")
			b.WriteString(f.Kind.Zero())
		}
	}

	b.WriteString(")")
	return b.String()
}
