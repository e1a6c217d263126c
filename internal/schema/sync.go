package schema

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/pkg/errors"
)

// SyncPlan lists the DDL needed to bring live tables up to the registered
// models.
type SyncPlan struct {
	Tables []TableSync
}

type TableSync struct {
	Table      string
	Missing    []Field
	Statements []string
}

func (p *SyncPlan) Empty() bool {
	return len(p.Tables) == 0
}

// SyncOptions controls one Sync run. With NoInput unset, the syncer asks for
// confirmation per table on In before altering it.
type SyncOptions struct {
	DryRun  bool
	NoInput bool
	Out     io.Writer
	In      io.Reader
}

// Syncer adds missing per-language columns to live tables. It only ever adds
// columns; dropping stale ones is left to the operator.
type Syncer struct {
	db     *sql.DB
	insp   Inspector
	logger *zap.Logger
}

func NewSyncer(db *sql.DB, insp Inspector, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		db:     db,
		insp:   insp,
		logger: logger,
	}
}

// Plan collects missing expansion columns for the given models. With only
// non-empty, models whose table is not listed are skipped.
func (s *Syncer) Plan(ctx context.Context, models []*Model, only []string) (*SyncPlan, error) {
	filter := make(map[string]struct{}, len(only))
	for _, t := range only {
		filter[t] = struct{}{}
	}

	plan := &SyncPlan{}
	for _, model := range models {
		if len(filter) > 0 {
			if _, ok := filter[model.Table]; !ok {
				continue
			}
		}

		exists, err := s.insp.HasTable(ctx, model.Table)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.NewSchemaError("table does not exist", model.Table, "", nil)
		}

		missing, err := MissingColumns(ctx, s.insp, model)
		if err != nil {
			return nil, err
		}
		if len(missing) == 0 {
			continue
		}

		plan.Tables = append(plan.Tables, TableSync{
			Table:      model.Table,
			Missing:    missing,
			Statements: AddColumnStatements(model, missing, s.insp.Dialect()),
		})
	}

	return plan, nil
}

// Sync prints each table's statements and executes them. Answering n in an
// interactive run skips that table only.
func (s *Syncer) Sync(ctx context.Context, plan *SyncPlan, opts SyncOptions) error {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	if plan.Empty() {
		fmt.Fprintln(out, "No new translatable columns detected")
		return nil
	}

	var in *bufio.Reader
	if !opts.NoInput {
		src := opts.In
		if src == nil {
			src = os.Stdin
		}
		in = bufio.NewReader(src)
	}

	for _, table := range plan.Tables {
		fmt.Fprintf(out, "Statements for table %q:\n", table.Table)
		for _, stmt := range table.Statements {
			fmt.Fprintf(out, "  %s\n", stmt)
		}

		if opts.DryRun {
			continue
		}

		if in != nil && !confirm(in, out, fmt.Sprintf("Apply to table %q?", table.Table)) {
			fmt.Fprintf(out, "Skipped table %q\n", table.Table)
			continue
		}

		for i, stmt := range table.Statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				column := ""
				if i < len(table.Missing) {
					column = table.Missing[i].Column
				}
				return errors.NewSchemaError("failed to add column", table.Table, column, err)
			}
		}

		s.logger.Info("Added translation columns",
			zap.String("table", table.Table),
			zap.Int("columns", len(table.Missing)),
		)
	}

	return nil
}

func confirm(in *bufio.Reader, out io.Writer, prompt string) bool {
	for {
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		line, err := in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		switch answer {
		case "y", "yes":
			return true
		case "n", "no", "":
			return false
		}
		if err != nil {
			return false
		}
	}
}
