package mt

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/store"
	"github.com/kapu/modeltrans-go/internal/translate"
	"github.com/kapu/modeltrans-go/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Translator is the provider surface the backfiller needs. *Manager and any
// single Provider satisfy it.
type Translator interface {
	Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error)
}

// Backfiller fills undefined translation slots with machine translations.
// Defined slots are never overwritten, and a failing slot never fails the
// run; it is counted and logged.
type Backfiller struct {
	repo       *store.Repository
	registry   *translate.Registry
	resolver   *lang.Resolver
	translator Translator
	logger     *zap.Logger
}

func NewBackfiller(repo *store.Repository, registry *translate.Registry, translator Translator, logger *zap.Logger) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{
		repo:       repo,
		registry:   registry,
		resolver:   registry.Resolver(),
		translator: translator,
		logger:     logger,
	}
}

// BackfillOptions narrow a run. Zero values mean every registered table,
// every configured language, resolution-order sources and the default
// concurrency.
type BackfillOptions struct {
	Tables      []string
	Languages   []string
	Source      string
	Glossary    map[string]string
	DryRun      bool
	Concurrency int
	Limit       int
}

// BackfillSummary counts slots, not records.
type BackfillSummary struct {
	Translated int
	Skipped    int
	Failed     int
}

func (b *Backfiller) Run(ctx context.Context, opts BackfillOptions) (*BackfillSummary, error) {
	tables := opts.Tables
	if len(tables) == 0 {
		for _, model := range b.registry.Models() {
			tables = append(tables, model.Table)
		}
	}

	targets, err := b.targetLanguages(opts)
	if err != nil {
		return nil, err
	}

	source := ""
	if opts.Source != "" {
		canonical, ok := b.resolver.Normalize(opts.Source)
		if !ok {
			return nil, errors.NewValidationError("unknown source language", "source", opts.Source)
		}
		source = canonical
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = constants.BackfillConfig.DefaultConcurrency
	}

	summary := &BackfillSummary{}
	var mu sync.Mutex

	for _, table := range tables {
		mt, err := b.registry.OptionsFor(table)
		if err != nil {
			return nil, err
		}

		if err := b.backfillTable(ctx, mt, targets, source, concurrency, opts, summary, &mu); err != nil {
			return nil, err
		}
	}

	b.logger.Info("Backfill complete",
		zap.Int("translated", summary.Translated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Bool("dry_run", opts.DryRun),
	)

	return summary, nil
}

// RunRecord backfills a single record's undefined slots. Watch mode routes
// incoming change events here. A missing record is not an error; it counts
// nothing.
func (b *Backfiller) RunRecord(ctx context.Context, table string, pk int64, opts BackfillOptions) (*BackfillSummary, error) {
	mt, err := b.registry.OptionsFor(table)
	if err != nil {
		return nil, err
	}

	targets, err := b.targetLanguages(opts)
	if err != nil {
		return nil, err
	}

	source := ""
	if opts.Source != "" {
		canonical, ok := b.resolver.Normalize(opts.Source)
		if !ok {
			return nil, errors.NewValidationError("unknown source language", "source", opts.Source)
		}
		source = canonical
	}

	summary := &BackfillSummary{}
	rec, err := b.repo.Get(ctx, table, pk)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return summary, nil
	}

	summary.Translated, summary.Skipped, summary.Failed = b.backfillRecord(ctx, mt, rec, targets, source, opts)
	return summary, nil
}

func (b *Backfiller) targetLanguages(opts BackfillOptions) ([]string, error) {
	if len(opts.Languages) == 0 {
		return b.resolver.Languages(), nil
	}

	targets := make([]string, 0, len(opts.Languages))
	for _, code := range opts.Languages {
		canonical, ok := b.resolver.Normalize(code)
		if !ok {
			return nil, errors.NewValidationError("unknown language", "languages", code)
		}
		targets = append(targets, canonical)
	}
	return targets, nil
}

func (b *Backfiller) backfillTable(ctx context.Context, mt *translate.ModelTranslation, targets []string, source string, concurrency int, opts BackfillOptions, summary *BackfillSummary, mu *sync.Mutex) error {
	table := mt.Model.Table
	pageSize := constants.BackfillConfig.ScanPageSize
	scanned := 0

	for offset := 0; ; offset += pageSize {
		limit := pageSize
		if opts.Limit > 0 && opts.Limit-scanned < limit {
			limit = opts.Limit - scanned
		}
		if limit <= 0 {
			break
		}

		records, err := b.repo.List(ctx, store.Query{
			Table:   table,
			OrderBy: []string{"id"},
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			break
		}
		scanned += len(records)

		p := pool.New().WithMaxGoroutines(concurrency)
		for _, rec := range records {
			rec := rec
			p.Go(func() {
				translated, skipped, failed := b.backfillRecord(ctx, mt, rec, targets, source, opts)
				mu.Lock()
				summary.Translated += translated
				summary.Skipped += skipped
				summary.Failed += failed
				mu.Unlock()
			})
		}
		p.Wait()

		if len(records) < limit {
			break
		}
	}

	b.logger.Info("Backfill table scanned",
		zap.String("table", table),
		zap.Int("records", scanned),
	)

	return nil
}

func (b *Backfiller) backfillRecord(ctx context.Context, mt *translate.ModelTranslation, rec *domain.Record, targets []string, source string, opts BackfillOptions) (translated, skipped, failed int) {
	for _, field := range mt.Options.Fields {
		baseField, ok := mt.Model.Field(field)
		if !ok || (baseField.Kind != schema.KindString && baseField.Kind != schema.KindText) {
			continue
		}

		marker := mt.UndefinedMarker(field)

		for _, target := range targets {
			if ctx.Err() != nil {
				return translated, skipped, failed
			}

			slot := translate.LocalizedFieldName(field, target)
			if cur, defined := rec.Get(slot); defined && cur != marker {
				skipped++
				continue
			}

			text, sourceLang := b.sourceFor(mt, rec, field, target, source, marker)
			if text == "" {
				skipped++
				continue
			}

			if opts.DryRun {
				translated++
				continue
			}

			req := domain.TranslationRequest{
				Text:       text,
				SourceLang: sourceLang,
				TargetLang: target,
				Kind:       KindOf(text),
				Glossary:   opts.Glossary,
			}

			res, err := b.translateWithRetry(ctx, req)
			if err != nil {
				failed++
				b.logger.Warn("Backfill translation failed",
					zap.String("table", mt.Model.Table),
					zap.Int64("pk", rec.PK),
					zap.String("field", field),
					zap.String("language", target),
					zap.Error(err),
				)
				continue
			}

			if _, err := b.repo.SetLocalized(ctx, mt.Model.Table, rec.PK, field, target, res.Text); err != nil {
				failed++
				b.logger.Warn("Backfill write failed",
					zap.String("table", mt.Model.Table),
					zap.Int64("pk", rec.PK),
					zap.String("field", field),
					zap.String("language", target),
					zap.Error(err),
				)
				continue
			}

			translated++
		}
	}

	return translated, skipped, failed
}

// sourceFor picks the text to translate from: the source override if given,
// otherwise the first defined slot in the target's resolution order, then
// the base column as a last resort.
func (b *Backfiller) sourceFor(mt *translate.ModelTranslation, rec *domain.Record, field, target, source string, marker any) (string, string) {
	if source != "" {
		if source == target {
			return "", ""
		}
		return b.slotText(rec, field, source, marker), source
	}

	for _, code := range b.resolver.ResolutionOrder(target, mt.Options.FallbackLanguages) {
		if code == target {
			continue
		}
		if text := b.slotText(rec, field, code, marker); text != "" {
			return text, code
		}
	}

	if val, ok := rec.Get(field); ok && val != marker {
		if text, isString := val.(string); isString && strings.TrimSpace(text) != "" {
			return text, b.resolver.Default()
		}
	}

	return "", ""
}

func (b *Backfiller) slotText(rec *domain.Record, field, code string, marker any) string {
	val, ok := rec.Get(translate.LocalizedFieldName(field, code))
	if !ok || val == marker {
		return ""
	}
	text, isString := val.(string)
	if !isString || strings.TrimSpace(text) == "" {
		return ""
	}
	return text
}

func (b *Backfiller) translateWithRetry(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error) {
	var lastErr error

	for attempt := 1; attempt <= constants.RetryConfig.MaxAttempts; attempt++ {
		res, err := b.translator.Translate(ctx, req)
		if err == nil {
			return res, nil
		}

		lastErr = err
		if !isRecoverableError(err) || attempt == constants.RetryConfig.MaxAttempts {
			break
		}

		sleep := constants.RetryConfig.BaseDelay * time.Duration(attempt)
		if constants.RetryConfig.Jitter > 0 {
			sleep += time.Duration(rand.Int63n(int64(constants.RetryConfig.Jitter)))
		}

		b.logger.Warn("Retrying translation",
			zap.String("target", req.TargetLang),
			zap.Int("attempt", attempt),
			zap.Duration("sleep", sleep),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}

	return nil, lastErr
}

// isRecoverableError matches transient provider failures worth a retry.
// Circuit-open errors are left out so a tripped breaker fails fast.
func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	recoverable := []string{
		"503",
		"UNAVAILABLE",
		"temporarily unavailable",
		"overloaded",
		"timeout",
		"connection reset",
	}

	for _, key := range recoverable {
		if strings.Contains(msg, key) {
			return true
		}
	}

	return false
}
