package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/translate"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

// EventSink receives change events after successful writes. The feed hub
// implements it; a nil sink disables publishing.
type EventSink interface {
	Publish(event domain.ChangeEvent)
}

// Repository reads and writes records through the translation registry. Reads
// scan into plain comparable values so accessor resolution can compare slots
// against field defaults.
type Repository struct {
	db       *sql.DB
	dialect  schema.Dialect
	registry *translate.Registry
	resolver *lang.Resolver
	populate translate.PopulateMode
	sink     EventSink
	logger   *zap.Logger
}

func NewRepository(database *Database, registry *translate.Registry, populate translate.PopulateMode, sink EventSink, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		db:       database.DB(),
		dialect:  database.Dialect(),
		registry: registry,
		resolver: registry.Resolver(),
		populate: populate,
		sink:     sink,
		logger:   logger,
	}
}

func (r *Repository) publish(event domain.ChangeEvent) {
	if r.sink == nil {
		return
	}
	event.At = time.Now().UTC()
	r.sink.Publish(event)
}

func (r *Repository) model(table string) *schema.Model {
	if mt, err := r.registry.OptionsFor(table); err == nil {
		return mt.Model
	}
	return nil
}

// List returns the records matching the query in resolution-ready form.
func (r *Repository) List(ctx context.Context, q Query) ([]*domain.Record, error) {
	model := r.model(q.Table)
	if model == nil && !identRe.MatchString(q.Table) {
		return nil, errors.NewValidationError("invalid table name", "table", q.Table)
	}

	c := newCompiler(r.registry, r.dialect, q, r.resolver.Active(ctx))
	where, err := c.where(q, !q.Raw)
	if err != nil {
		return nil, err
	}
	order, err := c.orderBy(q, !q.Raw)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if model != nil {
		b.WriteString(quotedColumnList(model, r.dialect))
	} else {
		b.WriteString("*")
	}
	b.WriteString(" FROM ")
	b.WriteString(schema.QuoteName(q.Table, r.dialect))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}

	rows, err := r.db.QueryContext(ctx, b.String(), c.args...)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list records", "list", q.Table, err)
	}
	defer rows.Close()

	records, err := r.scanRecords(rows, q.Table, model)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns how many records match the query's conditions.
func (r *Repository) Count(ctx context.Context, q Query) (int64, error) {
	model := r.model(q.Table)
	if model == nil && !identRe.MatchString(q.Table) {
		return 0, errors.NewValidationError("invalid table name", "table", q.Table)
	}

	c := newCompiler(r.registry, r.dialect, q, r.resolver.Active(ctx))
	where, err := c.where(q, !q.Raw)
	if err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM " + schema.QuoteName(q.Table, r.dialect)
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, c.args...).Scan(&count); err != nil {
		return 0, errors.NewDatabaseError("failed to count records", "count", q.Table, err)
	}
	return count, nil
}

// Get returns one record by primary key, or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, table string, pk int64) (*domain.Record, error) {
	model := r.model(table)
	if model == nil && !identRe.MatchString(table) {
		return nil, errors.NewValidationError("invalid table name", "table", table)
	}

	pkName := "id"
	cols := "*"
	if model != nil {
		pkName = model.PKName
		cols = quotedColumnList(model, r.dialect)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 1",
		cols,
		schema.QuoteName(table, r.dialect),
		schema.QuoteName(pkName, r.dialect),
		r.placeholder(1),
	)

	rows, err := r.db.QueryContext(ctx, query, pk)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to get record", "get", table, err)
	}
	defer rows.Close()

	records, err := r.scanRecords(rows, table, model)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Create inserts a record, applying the configured auto-population for
// registered tables first. The new primary key is returned.
func (r *Repository) Create(ctx context.Context, rec *domain.Record) (int64, error) {
	model := r.model(rec.Table)
	if model == nil && !identRe.MatchString(rec.Table) {
		return 0, errors.NewValidationError("invalid table name", "table", rec.Table)
	}

	if model != nil {
		mt, _ := r.registry.OptionsFor(rec.Table)
		translate.Populate(rec, r.populate, mt, r.resolver)
	}

	columns, err := r.writeColumns(model, rec.Values)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, errors.NewValidationError("record has no values", "values", nil)
	}

	quoted := make([]string, 0, len(columns)+1)
	placeholders := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)

	if rec.PK != 0 {
		pkName := "id"
		if model != nil {
			pkName = model.PKName
		}
		quoted = append(quoted, schema.QuoteName(pkName, r.dialect))
		args = append(args, rec.PK)
		placeholders = append(placeholders, r.placeholder(len(args)))
	}
	for _, col := range columns {
		quoted = append(quoted, schema.QuoteName(col, r.dialect))
		args = append(args, rec.Values[col])
		placeholders = append(placeholders, r.placeholder(len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.QuoteName(rec.Table, r.dialect),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	var pk int64
	if r.dialect == schema.DialectPostgres {
		pkName := "id"
		if model != nil {
			pkName = model.PKName
		}
		query += " RETURNING " + schema.QuoteName(pkName, r.dialect)
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&pk); err != nil {
			return 0, errors.NewDatabaseError("failed to insert record", "create", rec.Table, err)
		}
	} else {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, errors.NewDatabaseError("failed to insert record", "create", rec.Table, err)
		}
		pk, err = res.LastInsertId()
		if err != nil {
			return 0, errors.NewDatabaseError("failed to read new primary key", "create", rec.Table, err)
		}
	}

	rec.PK = pk
	r.publish(domain.ChangeEvent{
		Table:  rec.Table,
		PK:     pk,
		Action: domain.ChangeActionCreated,
	})
	return pk, nil
}

// Update writes the given values on one record. With rewrite set, keys naming
// translated fields go to the active language's slot; F values reference
// other columns and go through the same mapping.
func (r *Repository) Update(ctx context.Context, table string, pk int64, set map[string]any, rewrite bool) (int64, error) {
	if len(set) == 0 {
		return 0, errors.NewValidationError("no values to update", "set", nil)
	}
	model := r.model(table)
	if model == nil && !identRe.MatchString(table) {
		return 0, errors.NewValidationError("invalid table name", "table", table)
	}

	active := r.resolver.Active(ctx)

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assignments := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)

	for _, key := range keys {
		column := key
		if rewrite {
			column = RewriteKey(r.registry, table, key, active)
		}
		if err := r.checkColumn(model, column); err != nil {
			return 0, err
		}

		if ref, ok := set[key].(F); ok {
			refCol := string(ref)
			if rewrite && r.registry.IsTranslatedField(table, refCol) {
				refCol = translate.LocalizedFieldName(refCol, active)
			}
			if err := r.checkColumn(model, refCol); err != nil {
				return 0, err
			}
			assignments = append(assignments,
				schema.QuoteName(column, r.dialect)+" = "+schema.QuoteName(refCol, r.dialect))
			continue
		}

		args = append(args, set[key])
		assignments = append(assignments,
			schema.QuoteName(column, r.dialect)+" = "+r.placeholder(len(args)))
	}

	pkName := "id"
	if model != nil {
		pkName = model.PKName
	}
	args = append(args, pk)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		schema.QuoteName(table, r.dialect),
		strings.Join(assignments, ", "),
		schema.QuoteName(pkName, r.dialect),
		r.placeholder(len(args)),
	)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewDatabaseError("failed to update record", "update", table, err)
	}
	affected, _ := res.RowsAffected()

	if affected > 0 {
		r.publish(domain.ChangeEvent{
			Table:  table,
			PK:     pk,
			Action: domain.ChangeActionUpdated,
		})
	}
	return affected, nil
}

// Delete removes one record by primary key.
func (r *Repository) Delete(ctx context.Context, table string, pk int64) (int64, error) {
	model := r.model(table)
	if model == nil && !identRe.MatchString(table) {
		return 0, errors.NewValidationError("invalid table name", "table", table)
	}

	pkName := "id"
	if model != nil {
		pkName = model.PKName
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		schema.QuoteName(table, r.dialect),
		schema.QuoteName(pkName, r.dialect),
		r.placeholder(1),
	)

	res, err := r.db.ExecContext(ctx, query, pk)
	if err != nil {
		return 0, errors.NewDatabaseError("failed to delete record", "delete", table, err)
	}
	affected, _ := res.RowsAffected()

	if affected > 0 {
		r.publish(domain.ChangeEvent{
			Table:  table,
			PK:     pk,
			Action: domain.ChangeActionDeleted,
		})
	}
	return affected, nil
}

// SetLocalized writes one translation slot of one record. An empty language
// writes the active language's slot. The change event names the field and the
// language so feed consumers can invalidate precisely.
func (r *Repository) SetLocalized(ctx context.Context, table string, pk int64, field, language string, value any) (int64, error) {
	if !r.registry.IsTranslatedField(table, field) {
		return 0, errors.NewValidationError("field is not registered for translation", field, table)
	}

	code := language
	if code == "" {
		code = r.resolver.Active(ctx)
	} else {
		normalized, ok := r.resolver.Normalize(code)
		if !ok {
			return 0, errors.NewValidationError("unsupported language", "language", language)
		}
		code = normalized
	}

	slot := translate.LocalizedFieldName(field, code)
	model := r.model(table)

	query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		schema.QuoteName(table, r.dialect),
		schema.QuoteName(slot, r.dialect),
		r.placeholder(1),
		schema.QuoteName(model.PKName, r.dialect),
		r.placeholder(2),
	)

	res, err := r.db.ExecContext(ctx, query, value, pk)
	if err != nil {
		return 0, errors.NewDatabaseError("failed to write translation slot", "set_localized", table, err)
	}
	affected, _ := res.RowsAffected()

	if affected > 0 {
		r.publish(domain.ChangeEvent{
			Table:    table,
			PK:       pk,
			Field:    field,
			Language: code,
			Action:   domain.ChangeActionUpdated,
		})
	}
	return affected, nil
}

// UpdateDefaultFromBase copies legacy base-column values into the default
// language's empty slots, table-wide. It returns rows affected per field.
func (r *Repository) UpdateDefaultFromBase(ctx context.Context, table string, fields []string) (map[string]int64, error) {
	mt, err := r.registry.OptionsFor(table)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = mt.Options.Fields
	}

	def := r.resolver.Default()
	affected := make(map[string]int64, len(fields))

	for _, field := range fields {
		base, ok := mt.Model.Field(field)
		if !ok || !r.registry.IsTranslatedField(table, field) {
			return nil, errors.NewValidationError("field is not registered for translation", field, table)
		}

		slot := schema.QuoteName(translate.LocalizedFieldName(field, def), r.dialect)
		baseCol := schema.QuoteName(base.Column, r.dialect)

		where := slot + " IS NULL"
		if base.Kind == schema.KindString || base.Kind == schema.KindText {
			where = "(" + where + " OR " + slot + " = '')"
		}

		query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s",
			schema.QuoteName(table, r.dialect), slot, baseCol, where)

		res, err := r.db.ExecContext(ctx, query)
		if err != nil {
			return nil, errors.NewDatabaseError("failed to update default slots", "update_default", table, err)
		}
		n, _ := res.RowsAffected()
		affected[field] = n
	}

	return affected, nil
}

func (r *Repository) placeholder(n int) string {
	return placeholderFor(r.dialect, n)
}

// writeColumns selects the record values to persist, in model field order for
// registered tables and sorted order otherwise.
func (r *Repository) writeColumns(model *schema.Model, values map[string]any) ([]string, error) {
	if model == nil {
		cols := make([]string, 0, len(values))
		for col := range values {
			if !identRe.MatchString(col) {
				return nil, errors.NewValidationError("invalid column name", col, nil)
			}
			cols = append(cols, col)
		}
		sort.Strings(cols)
		return cols, nil
	}

	for col := range values {
		if !model.HasColumn(col) {
			return nil, errors.NewValidationError("unknown column", col, nil)
		}
	}
	cols := make([]string, 0, len(values))
	for _, f := range model.Fields {
		if _, ok := values[f.Column]; ok {
			cols = append(cols, f.Column)
		}
	}
	return cols, nil
}

func (r *Repository) checkColumn(model *schema.Model, column string) error {
	if model != nil {
		if !model.HasColumn(column) {
			return errors.NewValidationError("unknown column", column, nil)
		}
		return nil
	}
	if !identRe.MatchString(column) {
		return errors.NewValidationError("invalid column name", column, nil)
	}
	return nil
}

func quotedColumnList(model *schema.Model, dialect schema.Dialect) string {
	cols := model.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = schema.QuoteName(c, dialect)
	}
	return strings.Join(quoted, ", ")
}

// scanRecords reads all rows into records. Values come out as string, int64,
// float64, bool, time.Time or nil; never []byte, so callers can compare them
// against field defaults.
func (r *Repository) scanRecords(rows *sql.Rows, table string, model *schema.Model) ([]*domain.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.NewDatabaseError("failed to read result columns", "scan", table, err)
	}

	pkName := "id"
	if model != nil {
		pkName = model.PKName
	}

	var records []*domain.Record
	for rows.Next() {
		dests := make([]any, len(columns))
		for i, col := range columns {
			dests[i] = scanDest(model, col)
		}
		if err := rows.Scan(dests...); err != nil {
			r.logger.Warn("Failed to scan record row", zap.String("table", table), zap.Error(err))
			continue
		}

		rec := domain.NewRecord(table)
		for i, col := range columns {
			val := destValue(dests[i])
			if col == pkName {
				if n, ok := val.(int64); ok {
					rec.PK = n
				}
				continue
			}
			rec.Values[col] = val
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("failed to read record rows", "scan", table, err)
	}

	return records, nil
}

func scanDest(model *schema.Model, column string) any {
	if model != nil {
		if column == model.PKName {
			return &sql.NullInt64{}
		}
		for _, f := range model.Fields {
			if f.Column != column {
				continue
			}
			switch f.Kind {
			case schema.KindString, schema.KindText:
				return &sql.NullString{}
			case schema.KindInt, schema.KindRef:
				return &sql.NullInt64{}
			case schema.KindFloat:
				return &sql.NullFloat64{}
			case schema.KindBool:
				return &sql.NullBool{}
			case schema.KindTime:
				return &sql.NullTime{}
			}
		}
	}
	return new(any)
}

func destValue(dest any) any {
	switch d := dest.(type) {
	case *sql.NullString:
		if d.Valid {
			return d.String
		}
	case *sql.NullInt64:
		if d.Valid {
			return d.Int64
		}
	case *sql.NullFloat64:
		if d.Valid {
			return d.Float64
		}
	case *sql.NullBool:
		if d.Valid {
			return d.Bool
		}
	case *sql.NullTime:
		if d.Valid {
			return d.Time
		}
	case *any:
		if b, ok := (*d).([]byte); ok {
			return string(b)
		}
		return *d
	}
	return nil
}
