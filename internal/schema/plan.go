package schema

import (
	"context"
	"fmt"
)

// MissingColumns returns the expansion fields of the model whose columns do
// not exist on the live table yet. Base fields are never reported; creating
// them is the owning application's job, not ours.
func MissingColumns(ctx context.Context, insp Inspector, model *Model) ([]Field, error) {
	cols, err := insp.TableColumns(ctx, model.Table)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		existing[c.Name] = struct{}{}
	}

	var missing []Field
	for _, f := range model.TranslationFields("") {
		if _, ok := existing[f.Column]; !ok {
			missing = append(missing, f)
		}
	}
	return missing, nil
}

// AddColumnStatements renders the ALTER TABLE statements for missing
// expansion columns. Non-nullable columns get the kind's zero default so the
// statement succeeds on populated tables.
func AddColumnStatements(model *Model, missing []Field, dialect Dialect) []string {
	stmts := make([]string, 0, len(missing))
	for _, f := range missing {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			QuoteName(model.Table, dialect),
			QuoteName(f.Column, dialect),
			ColumnType(f, dialect),
		)
		if !f.Nullable {
			stmt += fmt.Sprintf(" NOT NULL DEFAULT %s", f.Kind.Zero())
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

// TableChanges is the drift of one table against its registered model.
type TableChanges struct {
	Table        string   `json:"table"`
	MissingTable bool     `json:"missing_table,omitempty"`
	Missing      []Field  `json:"missing_columns,omitempty"`
	Extra        []string `json:"extra_columns,omitempty"`
}

// ChangeReport is the automatic change detection result across all
// registered models.
type ChangeReport struct {
	Tables []TableChanges `json:"tables"`
}

// Empty reports whether no drift was detected.
func (r *ChangeReport) Empty() bool {
	for _, t := range r.Tables {
		if t.MissingTable || len(t.Missing) > 0 || len(t.Extra) > 0 {
			return false
		}
	}
	return true
}

// BuildChangeReport diffs every model against its live table. With
// hideTranslation set, auto-generated language columns are left out of the
// report entirely, matching installations that manage those columns through
// the sync command alone and do not want detection tools picking them up.
func BuildChangeReport(ctx context.Context, insp Inspector, models []*Model, hideTranslation bool) (*ChangeReport, error) {
	report := &ChangeReport{Tables: make([]TableChanges, 0, len(models))}

	for _, model := range models {
		changes := TableChanges{Table: model.Table}

		ok, err := insp.HasTable(ctx, model.Table)
		if err != nil {
			return nil, err
		}
		if !ok {
			changes.MissingTable = true
			report.Tables = append(report.Tables, changes)
			continue
		}

		cols, err := insp.TableColumns(ctx, model.Table)
		if err != nil {
			return nil, err
		}
		existing := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			existing[c.Name] = struct{}{}
		}

		for _, f := range model.Fields {
			if _, ok := existing[f.Column]; ok {
				continue
			}
			if f.Translation && hideTranslation {
				continue
			}
			changes.Missing = append(changes.Missing, f)
		}

		known := make(map[string]struct{}, len(model.Fields)+1)
		known[model.PKName] = struct{}{}
		for _, f := range model.Fields {
			known[f.Column] = struct{}{}
		}
		for _, c := range cols {
			if _, ok := known[c.Name]; !ok {
				changes.Extra = append(changes.Extra, c.Name)
			}
		}

		report.Tables = append(report.Tables, changes)
	}

	return report, nil
}
