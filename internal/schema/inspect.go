package schema

import "context"

// ColumnInfo is one live column as reported by the database.
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

// Inspector reads live table layouts so the planner can diff them against
// registered models.
type Inspector interface {
	Dialect() Dialect
	HasTable(ctx context.Context, table string) (bool, error)
	TableColumns(ctx context.Context, table string) ([]ColumnInfo, error)
}
