package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

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
		files        multiString
		populateFlag string
		dryRun       bool
	)

	flag.Var(&files, "file", "fixture file to load (can be specified multiple times)")
	flag.StringVar(&populateFlag, "populate", "", "populate mode override: off, all, default or required")
	flag.BoolVar(&dryRun, "dry-run", false, "report fixture contents without writing anything")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if len(files) == 0 {
		logger.Fatal("at least one -file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	mode := cfg.Languages.AutoPopulate
	if populateFlag != "" {
		mode = populateFlag
	}
	populate, err := translate.ParsePopulateMode(mode)
	if err != nil {
		logger.Fatal("invalid populate mode", zap.String("mode", mode), zap.Error(err))
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
		logger.Fatal("MT_MODELS_FILE is not configured; no models to load into")
	}
	if _, err := translate.LoadModelsFile(registry, cfg.Models.File); err != nil {
		logger.Fatal("failed to load models file", zap.String("file", cfg.Models.File), zap.Error(err))
	}

	ctx := context.Background()
	insp := db.Inspector()

	for _, model := range registry.Models() {
		exists, err := insp.HasTable(ctx, model.Table)
		if err != nil {
			logger.Fatal("failed to inspect table", zap.String("table", model.Table), zap.Error(err))
		}
		if exists {
			continue
		}

		if dryRun {
			fmt.Printf("Would create table %q\n", model.Table)
			continue
		}

		stmt := schema.CreateTableStatement(model, db.Dialect())
		if _, err := db.DB().ExecContext(ctx, stmt); err != nil {
			logger.Fatal("failed to create table", zap.String("table", model.Table), zap.Error(err))
		}
		fmt.Printf("Created table %q\n", model.Table)
	}

	total := 0
	for _, path := range files {
		if dryRun {
			counts, n, err := countFixtures(path)
			if err != nil {
				logger.Fatal("failed to read fixture file", zap.String("file", path), zap.Error(err))
			}

			tables := make([]string, 0, len(counts))
			for table := range counts {
				tables = append(tables, table)
			}
			sort.Strings(tables)

			fmt.Printf("Would load %d records from %s\n", n, path)
			for _, table := range tables {
				fmt.Printf("  %s: %d\n", table, counts[table])
			}
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			logger.Fatal("failed to open fixture file", zap.String("file", path), zap.Error(err))
		}

		n, err := store.LoadFixtures(ctx, db, registry, f, populate, logger)
		f.Close()
		if err != nil {
			logger.Fatal("failed to load fixtures", zap.String("file", path), zap.Error(err))
		}

		fmt.Printf("Loaded %d records from %s\n", n, path)
		total += n
	}

	if !dryRun {
		fmt.Printf("Done, %d records loaded\n", total)
	}
}

func countFixtures(path string) (map[string]int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	var fixtures []store.Fixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return nil, 0, err
	}

	counts := make(map[string]int)
	for _, f := range fixtures {
		counts[f.Table]++
	}
	return counts, len(fixtures), nil
}
