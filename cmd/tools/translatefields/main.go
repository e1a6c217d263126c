package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/feed"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/mt"
	"github.com/kapu/modeltrans-go/internal/store"
	"github.com/kapu/modeltrans-go/internal/translate"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

type multiString []string

func (m *multiString) String() string {
	return strings.Join(*m, ",")
}

func (m *multiString) Set(value string) error {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*m = append(*m, trimmed)
	}
	return nil
}

func main() {
	var (
		tableFlags  multiString
		langFlags   multiString
		source      string
		dryRun      bool
		concurrency int
		watch       bool
	)

	flag.Var(&tableFlags, "table", "restrict to this table (can be specified multiple times)")
	flag.Var(&langFlags, "lang", "target language (can be specified multiple times, default all configured)")
	flag.StringVar(&source, "source", "", "translate from this language only instead of walking the fallback order")
	flag.BoolVar(&dryRun, "dry-run", false, "count translatable slots without calling any provider")
	flag.IntVar(&concurrency, "concurrency", 0, "records translated in parallel (0 uses the built-in default)")
	flag.BoolVar(&watch, "watch", false, "subscribe to the change feed and translate incoming changes")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	resolver, err := lang.NewResolver(cfg.Languages.Codes, cfg.Languages.Default,
		cfg.Languages.EnableFallbacks, cfg.Languages.Fallbacks)
	if err != nil {
		logger.Fatal("failed to build language resolver", zap.Error(err))
	}

	registry := translate.NewRegistry(resolver, logger)
	if cfg.Models.File == "" {
		logger.Fatal("MT_MODELS_FILE is not configured; no models to translate")
	}
	if _, err := translate.LoadModelsFile(registry, cfg.Models.File); err != nil {
		logger.Fatal("failed to load models file", zap.String("file", cfg.Models.File), zap.Error(err))
	}

	repo := store.NewRepository(db, registry, translate.PopulateOff, nil, logger)
	ctx := context.Background()

	var translator mt.Translator
	if !dryRun {
		manager, err := mt.NewManagerFromConfig(ctx, mt.ManagerConfig{
			Gemini: cfg.Gemini,
			OpenAI: cfg.OpenAI,
			Google: cfg.Google,
		}, logger)
		if err != nil {
			logger.Fatal("failed to create translation manager", zap.Error(err))
		}
		translator = manager
	} else {
		translator = noopTranslator{}
	}

	backfiller := mt.NewBackfiller(repo, registry, translator, logger)

	opts := mt.BackfillOptions{
		Tables:      tableFlags,
		Languages:   langFlags,
		Source:      source,
		DryRun:      dryRun,
		Concurrency: concurrency,
	}

	if watch {
		runWatch(ctx, cfg, registry, backfiller, opts, logger)
		return
	}

	summary, err := backfiller.Run(ctx, opts)
	if err != nil {
		logger.Fatal("backfill failed", zap.Error(err))
	}
	printSummary(summary, dryRun)
}

// runWatch consumes the daemon's change feed and backfills each created or
// updated record as it arrives. It blocks until SIGINT or SIGTERM, then
// prints the accumulated summary.
func runWatch(ctx context.Context, cfg *config.Config, registry *translate.Registry, backfiller *mt.Backfiller, opts mt.BackfillOptions, logger *zap.Logger) {
	watched := make(map[string]struct{}, len(opts.Tables))
	for _, table := range opts.Tables {
		watched[table] = struct{}{}
	}

	wsURL := fmt.Sprintf("ws://localhost:%d/v1/feed", cfg.Server.Port)
	sub := feed.NewSubscriber(wsURL,
		constants.WebSocketConfig.MaxReconnectAttempts,
		constants.WebSocketConfig.ReconnectDelay,
		logger)

	events := make(chan *domain.ChangeEvent, 64)
	unsubscribe := sub.OnEvent(func(event *domain.ChangeEvent) {
		select {
		case events <- event:
		default:
			logger.Warn("event queue full, dropping change", zap.String("table", event.Table))
		}
	})
	defer unsubscribe()

	if err := sub.Connect(ctx); err != nil {
		logger.Fatal("failed to connect to change feed", zap.String("url", wsURL), zap.Error(err))
	}
	defer sub.Disconnect()

	logger.Info("Watching change feed", zap.String("url", wsURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	summary := &mt.BackfillSummary{}
	for {
		select {
		case <-sigCh:
			printSummary(summary, opts.DryRun)
			return
		case event := <-events:
			if event.Action != domain.ChangeActionCreated && event.Action != domain.ChangeActionUpdated {
				continue
			}
			if event.PK == 0 || !registry.IsRegistered(event.Table) {
				continue
			}
			if len(watched) > 0 {
				if _, ok := watched[event.Table]; !ok {
					continue
				}
			}

			res, err := backfiller.RunRecord(ctx, event.Table, event.PK, opts)
			if err != nil {
				logger.Warn("watch translation failed",
					zap.String("table", event.Table),
					zap.Int64("pk", event.PK),
					zap.Error(err),
				)
				continue
			}

			summary.Translated += res.Translated
			summary.Skipped += res.Skipped
			summary.Failed += res.Failed

			if res.Translated > 0 {
				logger.Info("Translated record",
					zap.String("table", event.Table),
					zap.Int64("pk", event.PK),
					zap.Int("slots", res.Translated),
				)
			}
		}
	}
}

func printSummary(summary *mt.BackfillSummary, dryRun bool) {
	fmt.Println("Translation summary")
	fmt.Printf("  translated: %d\n", summary.Translated)
	fmt.Printf("  skipped:    %d\n", summary.Skipped)
	fmt.Printf("  failed:     %d\n", summary.Failed)
	if dryRun {
		fmt.Println("  (dry run, nothing written)")
	}
}

// noopTranslator satisfies the backfiller in dry runs, which count slots
// without ever reaching a provider.
type noopTranslator struct{}

func (noopTranslator) Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResult, error) {
	return nil, errors.NewProviderError("no translation provider in dry run", "none", 0, nil)
}
