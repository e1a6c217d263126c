package schema

import (
	"context"
	"database/sql"
	"strings"

	"github.com/kapu/modeltrans-go/pkg/errors"
)

// SQLiteInspector reads table layouts through the pragma table-valued
// functions.
type SQLiteInspector struct {
	db *sql.DB
}

func NewSQLiteInspector(db *sql.DB) *SQLiteInspector {
	return &SQLiteInspector{db: db}
}

func (si *SQLiteInspector) Dialect() Dialect {
	return DialectSQLite
}

func (si *SQLiteInspector) HasTable(ctx context.Context, table string) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`

	var count int
	if err := si.db.QueryRowContext(ctx, query, table).Scan(&count); err != nil {
		return false, errors.NewSchemaError("failed to check table existence", table, "", err)
	}
	return count > 0, nil
}

func (si *SQLiteInspector) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	query := `SELECT name, type, "notnull" FROM pragma_table_info(?)`

	rows, err := si.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, errors.NewSchemaError("failed to read table columns", table, "", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			name     string
			dataType string
			notNull  int
		)
		if err := rows.Scan(&name, &dataType, &notNull); err != nil {
			return nil, errors.NewSchemaError("failed to scan column row", table, "", err)
		}
		cols = append(cols, ColumnInfo{
			Name:     name,
			DataType: strings.ToUpper(dataType),
			Nullable: notNull == 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSchemaError("failed to read table columns", table, "", err)
	}

	return cols, nil
}
