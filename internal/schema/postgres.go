package schema

import (
	"context"
	"database/sql"

	"github.com/kapu/modeltrans-go/pkg/errors"
)

// PostgresInspector reads table layouts from information_schema.
type PostgresInspector struct {
	db *sql.DB
}

func NewPostgresInspector(db *sql.DB) *PostgresInspector {
	return &PostgresInspector{db: db}
}

func (pi *PostgresInspector) Dialect() Dialect {
	return DialectPostgres
}

func (pi *PostgresInspector) HasTable(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`

	var exists bool
	if err := pi.db.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
		return false, errors.NewSchemaError("failed to check table existence", table, "", err)
	}
	return exists, nil
}

func (pi *PostgresInspector) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := pi.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, errors.NewSchemaError("failed to read table columns", table, "", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			name     string
			dataType string
			nullable string
		)
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, errors.NewSchemaError("failed to scan column row", table, "", err)
		}
		cols = append(cols, ColumnInfo{
			Name:     name,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSchemaError("failed to read table columns", table, "", err)
	}

	return cols, nil
}
