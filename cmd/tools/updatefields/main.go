package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/lang"
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
		dryRun     bool
		tableFlags multiString
	)

	flag.BoolVar(&dryRun, "dry-run", false, "list the tables and fields without updating anything")
	flag.Var(&tableFlags, "table", "restrict to this table (can be specified multiple times)")
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
		logger.Fatal("MT_MODELS_FILE is not configured; no models to update")
	}
	if _, err := translate.LoadModelsFile(registry, cfg.Models.File); err != nil {
		logger.Fatal("failed to load models file", zap.String("file", cfg.Models.File), zap.Error(err))
	}

	repo := store.NewRepository(db, registry, translate.PopulateOff, nil, logger)
	ctx := context.Background()

	tables := []string(tableFlags)
	if len(tables) == 0 {
		for _, model := range registry.Models() {
			tables = append(tables, model.Table)
		}
	}

	var total int64
	for _, table := range tables {
		mt, err := registry.OptionsFor(table)
		if err != nil {
			logger.Fatal("unknown table", zap.String("table", table), zap.Error(err))
		}

		if dryRun {
			fmt.Printf("Would copy base columns for table %q (%s) into %s slots\n",
				table, strings.Join(mt.Options.Fields, ", "), resolver.Default())
			continue
		}

		affected, err := repo.UpdateDefaultFromBase(ctx, table, nil)
		if err != nil {
			logger.Fatal("update failed", zap.String("table", table), zap.Error(err))
		}

		fields := make([]string, 0, len(affected))
		for field := range affected {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		for _, field := range fields {
			fmt.Printf("Table %q field %q: %d rows updated\n", table, field, affected[field])
			total += affected[field]
		}
	}

	if !dryRun {
		fmt.Printf("Done, %d rows updated\n", total)
	}
}
