package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/translate"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

// Fixture is one record in a fixture file. Fields may name base columns and
// translation slots alike.
type Fixture struct {
	Table  string         `json:"table"`
	PK     int64          `json:"pk"`
	Fields map[string]any `json:"fields"`
}

func placeholderFor(dialect schema.Dialect, n int) string {
	if dialect == schema.DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// LoadFixtures reads fixture JSON and writes every record inside one
// transaction. Registered tables are created when missing; records keep their
// fixture primary key, replacing any existing row under it. The populate mode
// distributes base-field values into language slots the same way Create does.
func LoadFixtures(ctx context.Context, database *Database, registry *translate.Registry, r io.Reader, populate translate.PopulateMode, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var fixtures []Fixture
	if err := json.NewDecoder(r).Decode(&fixtures); err != nil {
		return 0, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	for i, f := range fixtures {
		if f.Table == "" {
			return 0, errors.NewValidationError("fixture without table", "table", i)
		}
		if f.PK <= 0 {
			return 0, errors.NewValidationError("fixture without primary key", "pk", f.Table)
		}
	}

	db := database.DB()
	dialect := database.Dialect()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewDatabaseError("failed to begin transaction", "fixtures", "", err)
	}
	defer tx.Rollback()

	created := make(map[string]bool)
	for _, f := range fixtures {
		if created[f.Table] {
			continue
		}
		if mt, err := registry.OptionsFor(f.Table); err == nil {
			if _, err := tx.ExecContext(ctx, schema.CreateTableStatement(mt.Model, dialect)); err != nil {
				return 0, errors.NewDatabaseError("failed to create table", "fixtures", f.Table, err)
			}
		}
		created[f.Table] = true
	}

	for _, f := range fixtures {
		if err := insertFixture(ctx, tx, registry, dialect, populate, f); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewDatabaseError("failed to commit fixtures", "fixtures", "", err)
	}

	logger.Info("Fixtures loaded", zap.Int("records", len(fixtures)))
	return len(fixtures), nil
}

func insertFixture(ctx context.Context, tx *sql.Tx, registry *translate.Registry, dialect schema.Dialect, populate translate.PopulateMode, f Fixture) error {
	var (
		model *schema.Model
		mt    *translate.ModelTranslation
	)
	if opts, err := registry.OptionsFor(f.Table); err == nil {
		mt = opts
		model = opts.Model
	} else if !identRe.MatchString(f.Table) {
		return errors.NewValidationError("invalid table name", "table", f.Table)
	}

	pkName := "id"
	if model != nil {
		pkName = model.PKName
	}

	fields := f.Fields
	if mt != nil && populate != translate.PopulateOff {
		rec := domain.NewRecord(f.Table)
		for k, v := range f.Fields {
			rec.Set(k, v)
		}
		translate.Populate(rec, populate, mt, registry.Resolver())
		fields = rec.Values
	}

	columns := make([]string, 0, len(fields))
	for col := range fields {
		if model != nil {
			if !model.HasColumn(col) {
				return errors.NewValidationError("unknown fixture column", col, f.Table)
			}
		} else if !identRe.MatchString(col) {
			return errors.NewValidationError("invalid fixture column", col, f.Table)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	table := schema.QuoteName(f.Table, dialect)

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		table, schema.QuoteName(pkName, dialect), placeholderFor(dialect, 1))
	if _, err := tx.ExecContext(ctx, del, f.PK); err != nil {
		return errors.NewDatabaseError("failed to clear fixture row", "fixtures", f.Table, err)
	}

	quoted := []string{schema.QuoteName(pkName, dialect)}
	placeholders := []string{placeholderFor(dialect, 1)}
	args := []any{f.PK}
	for _, col := range columns {
		quoted = append(quoted, schema.QuoteName(col, dialect))
		args = append(args, fields[col])
		placeholders = append(placeholders, placeholderFor(dialect, len(args)))
	}

	ins := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
		return errors.NewDatabaseError("failed to insert fixture row", "fixtures", f.Table, err)
	}

	return nil
}
