package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/store"
	"github.com/kapu/modeltrans-go/internal/translate"
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
		noInput bool
		dryRun  bool
		envFile string
		tables  multiString
	)

	flag.BoolVar(&noInput, "noinput", false, "apply without asking for confirmation")
	flag.BoolVar(&dryRun, "dry-run", false, "print statements without executing them")
	flag.StringVar(&envFile, "env", "", "load environment from this file before reading config")
	flag.Var(&tables, "table", "restrict to this table (can be specified multiple times)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logger.Fatal("failed to load env file", zap.String("file", envFile), zap.Error(err))
		}
	}

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
		logger.Fatal("MT_MODELS_FILE is not configured; no models to sync")
	}
	if _, err := translate.LoadModelsFile(registry, cfg.Models.File); err != nil {
		logger.Fatal("failed to load models file", zap.String("file", cfg.Models.File), zap.Error(err))
	}

	ctx := context.Background()
	syncer := schema.NewSyncer(db.DB(), db.Inspector(), logger)

	plan, err := syncer.Plan(ctx, registry.Models(), tables)
	if err != nil {
		logger.Fatal("failed to plan column sync", zap.Error(err))
	}

	err = syncer.Sync(ctx, plan, schema.SyncOptions{
		DryRun:  dryRun,
		NoInput: noInput,
		Out:     os.Stdout,
		In:      os.Stdin,
	})
	if err != nil {
		logger.Fatal("column sync failed", zap.Error(err))
	}
}
