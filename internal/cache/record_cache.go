package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/store"
	"github.com/kapu/modeltrans-go/internal/translate"
)

// RecordCache keeps localized record projections in memory and, when Redis is
// configured, in a shared second tier. Entries are keyed per language, so one
// record caches independently for every requested language.
type RecordCache struct {
	repo     *store.Repository
	accessor *translate.Accessor
	resolver *lang.Resolver
	redis    *Service
	logger   *zap.Logger

	records sync.Map // map[string]*domain.LocalizedRecord

	ttl         time.Duration
	concurrency int
}

type RecordCacheConfig struct {
	TTL         time.Duration
	Concurrency int
}

func NewRecordCache(repo *store.Repository, registry *translate.Registry, redis *Service, logger *zap.Logger, cfg RecordCacheConfig) *RecordCache {
	if cfg.TTL == 0 {
		cfg.TTL = constants.CacheTTL.LocalizedRecord
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecordCache{
		repo:        repo,
		accessor:    translate.NewAccessor(registry),
		resolver:    registry.Resolver(),
		redis:       redis,
		logger:      logger,
		ttl:         cfg.TTL,
		concurrency: cfg.Concurrency,
	}
}

func recordKey(table string, pk int64, language string) string {
	return fmt.Sprintf("record:%s:%d:%s", table, pk, language)
}

// GetLocalized returns the record localized for the given language, loading
// and caching it on miss. An empty language means the context's active one;
// unknown codes degrade to the default language. A nil result without error
// means the record does not exist.
func (c *RecordCache) GetLocalized(ctx context.Context, table string, pk int64, language string) (*domain.LocalizedRecord, error) {
	code := language
	if code == "" {
		code = c.resolver.Active(ctx)
	} else if normalized, ok := c.resolver.Normalize(code); ok {
		code = normalized
	} else {
		code = c.resolver.Default()
	}

	key := recordKey(table, pk, code)
	if val, ok := c.records.Load(key); ok {
		return val.(*domain.LocalizedRecord), nil
	}

	if c.redis != nil {
		var cached domain.LocalizedRecord
		if hit, err := c.redis.Get(ctx, key, &cached); err == nil && hit {
			c.records.Store(key, &cached)
			return &cached, nil
		}
	}

	rec, err := c.repo.Get(ctx, table, pk)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	localized := c.accessor.Localize(c.resolver.WithActive(ctx, code), rec)
	c.store(ctx, key, localized)
	return localized, nil
}

func (c *RecordCache) store(ctx context.Context, key string, localized *domain.LocalizedRecord) {
	c.records.Store(key, localized)
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, localized, c.ttl); err != nil {
			c.logger.Warn("Failed to cache localized record", zap.String("key", key), zap.Error(err))
		}
	}
}

// Invalidate drops every language projection of one record.
func (c *RecordCache) Invalidate(ctx context.Context, table string, pk int64) {
	keys := make([]string, 0, len(c.resolver.Languages()))
	for _, code := range c.resolver.Languages() {
		key := recordKey(table, pk, code)
		c.records.Delete(key)
		keys = append(keys, key)
	}

	if c.redis != nil {
		if _, err := c.redis.Del(ctx, keys...); err != nil {
			c.logger.Warn("Failed to invalidate record in Redis",
				zap.String("table", table), zap.Int64("pk", pk), zap.Error(err))
		}
	}
}

// InvalidateTable drops every cached projection of one table.
func (c *RecordCache) InvalidateTable(ctx context.Context, table string) {
	prefix := fmt.Sprintf("record:%s:", table)
	c.records.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.records.Delete(key)
		}
		return true
	})

	if c.redis != nil {
		if _, err := c.redis.DeletePattern(ctx, prefix+"*"); err != nil {
			c.logger.Warn("Failed to invalidate table in Redis", zap.String("table", table), zap.Error(err))
		}
	}
}

// InvalidateAll empties both tiers.
func (c *RecordCache) InvalidateAll(ctx context.Context) {
	c.records = sync.Map{}

	if c.redis != nil {
		if _, err := c.redis.DeletePattern(ctx, "record:*"); err != nil {
			c.logger.Warn("Failed to invalidate record cache in Redis", zap.Error(err))
		}
	}
}

// HandleChange applies one change event to the cache. Feed subscribers use it
// to keep replicas coherent.
func (c *RecordCache) HandleChange(ctx context.Context, event domain.ChangeEvent) {
	switch event.Action {
	case domain.ChangeActionSynced:
		c.InvalidateTable(ctx, event.Table)
	default:
		if event.PK != 0 {
			c.Invalidate(ctx, event.Table, event.PK)
		} else {
			c.InvalidateTable(ctx, event.Table)
		}
	}
}

// WarmUp preloads the default-language projection of the first records of
// each table.
func (c *RecordCache) WarmUp(ctx context.Context, tables []string, perTable int) error {
	if perTable <= 0 {
		perTable = 100
	}

	def := c.resolver.Default()
	p := pool.New().WithMaxGoroutines(c.concurrency)

	var mu sync.Mutex
	total := 0
	var firstErr error

	for _, table := range tables {
		table := table
		p.Go(func() {
			recs, err := c.repo.List(ctx, store.Query{Table: table, Limit: perTable})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			langCtx := c.resolver.WithActive(ctx, def)
			for _, rec := range recs {
				localized := c.accessor.Localize(langCtx, rec)
				c.store(ctx, recordKey(table, rec.PK, def), localized)
			}

			mu.Lock()
			total += len(recs)
			mu.Unlock()
		})
	}
	p.Wait()

	if firstErr != nil {
		return firstErr
	}

	c.logger.Info("Record cache warmed up",
		zap.Int("tables", len(tables)),
		zap.Int("records", total),
	)
	return nil
}
