// Package app assembles the service graph behind the daemon and the CLI
// tools: database, registry, caches, translation providers, feed, and the
// HTTP server.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/cache"
	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/feed"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/mt"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/server"
	"github.com/kapu/modeltrans-go/internal/store"
	"github.com/kapu/modeltrans-go/internal/translate"
)

// Container bundles the assembled services. Manager and Backfiller are nil
// when no translation provider is configured; Redis and Records are nil when
// the cache is disabled.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	DB         *store.Database
	Resolver   *lang.Resolver
	Registry   *translate.Registry
	Repo       *store.Repository
	Redis      *cache.Service
	Records    *cache.RecordCache
	Hub        *feed.Hub
	Syncer     *schema.Syncer
	Manager    *mt.Manager
	Backfiller *mt.Backfiller
	Server     *server.Server

	closers []func()
}

// Close releases every service in reverse construction order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build assembles all infrastructure services. Heavy-weight initialization
// (DB, Redis, provider clients) happens here so the entry points stay focused
// on lifecycle and signals. On partial failure every already-opened service
// is closed again before returning.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	closers = append(closers, func() {
		_ = db.Close()
	})

	resolver, err := lang.NewResolver(cfg.Languages.Codes, cfg.Languages.Default,
		cfg.Languages.EnableFallbacks, cfg.Languages.Fallbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to build language resolver: %w", err)
	}

	registry := translate.NewRegistry(resolver, logger)
	if cfg.Models.File != "" {
		n, err := translate.LoadModelsFile(registry, cfg.Models.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load models file: %w", err)
		}
		logger.Info("Models registered from descriptor file",
			zap.String("file", cfg.Models.File), zap.Int("models", n))
	}

	populate, err := translate.ParsePopulateMode(cfg.Languages.AutoPopulate)
	if err != nil {
		return nil, fmt.Errorf("invalid MT_AUTO_POPULATE: %w", err)
	}

	hub := feed.NewHub(logger)
	closers = append(closers, hub.Close)

	events := &eventFanout{}
	events.add(hub)

	repo := store.NewRepository(db, registry, populate, events, logger)

	var (
		redisSvc *cache.Service
		records  *cache.RecordCache
	)
	if cfg.Redis.Enabled {
		redisSvc, err = cache.NewService(cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache service: %w", err)
		}
		closers = append(closers, func() {
			_ = redisSvc.Close()
		})
		if err = redisSvc.WaitUntilReady(ctx, constants.RedisConfig.ReadyTimeout); err != nil {
			return nil, fmt.Errorf("redis not ready: %w", err)
		}

		records = cache.NewRecordCache(repo, registry, redisSvc, logger, cache.RecordCacheConfig{})
		events.add(&cacheInvalidator{records: records})
	}

	syncer := schema.NewSyncer(db.DB(), db.Inspector(), logger)

	var (
		manager    *mt.Manager
		backfiller *mt.Backfiller
	)
	if providerConfigured(cfg) {
		manager, err = mt.NewManagerFromConfig(ctx, mt.ManagerConfig{
			Gemini: cfg.Gemini,
			OpenAI: cfg.OpenAI,
			Google: cfg.Google,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create translation manager: %w", err)
		}
		backfiller = mt.NewBackfiller(repo, registry, manager, logger)
	} else {
		logger.Info("No translation provider configured, machine translation disabled")
	}

	srv := server.New(server.Deps{
		Config:                 cfg.Server,
		DB:                     db,
		Repo:                   repo,
		Registry:               registry,
		Records:                records,
		Redis:                  redisSvc,
		Inspector:              db.Inspector(),
		Syncer:                 syncer,
		Hub:                    hub,
		Sink:                   events,
		HideTranslationColumns: cfg.Schema.HideTranslationColumns,
	}, logger)

	return &Container{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Resolver:   resolver,
		Registry:   registry,
		Repo:       repo,
		Redis:      redisSvc,
		Records:    records,
		Hub:        hub,
		Syncer:     syncer,
		Manager:    manager,
		Backfiller: backfiller,
		Server:     srv,
		closers:    closers,
	}, nil
}

func providerConfigured(cfg *config.Config) bool {
	return cfg.Gemini.APIKey != "" || cfg.OpenAI.APIKey != "" ||
		cfg.Google.APIKey != "" || cfg.Google.CredentialsFile != ""
}

// eventFanout distributes repository change events to every interested
// consumer. Targets are appended during assembly only; Publish runs for the
// process lifetime.
type eventFanout struct {
	mu    sync.RWMutex
	sinks []store.EventSink
}

func (f *eventFanout) add(s store.EventSink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

func (f *eventFanout) Publish(event domain.ChangeEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.Publish(event)
	}
}

// cacheInvalidator drops cached localized views when their source rows
// change. Events arrive synchronously from the repository, outside any
// request scope.
type cacheInvalidator struct {
	records *cache.RecordCache
}

func (c *cacheInvalidator) Publish(event domain.ChangeEvent) {
	c.records.HandleChange(context.Background(), event)
}
