package cache

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/store"
	"github.com/kapu/modeltrans-go/internal/translate"
)

func newCacheFixture(t *testing.T) (*RecordCache, *store.Repository, *lang.Resolver) {
	t.Helper()
	logger := zap.NewNop()

	db, err := store.OpenSQLiteMemory(logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	resolver, err := lang.NewResolver([]string{"de", "en"}, "de", true, nil)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	registry := translate.NewRegistry(resolver, logger)
	model := schema.NewModel("articles",
		schema.Field{Name: "title", Kind: schema.KindString, MaxLen: 200},
		schema.Field{Name: "views", Kind: schema.KindInt},
	)
	if err := registry.Register(model, translate.Options{Fields: []string{"title"}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := db.DB().Exec(schema.CreateTableStatement(model, schema.DialectSQLite)); err != nil {
		t.Fatalf("create table: %v", err)
	}

	repo := store.NewRepository(db, registry, translate.PopulateOff, nil, logger)
	rc := NewRecordCache(repo, registry, nil, logger, RecordCacheConfig{})
	return rc, repo, resolver
}

func seedArticle(t *testing.T, repo *store.Repository, values map[string]any) int64 {
	t.Helper()
	rec := domain.NewRecord("articles")
	for k, v := range values {
		rec.Set(k, v)
	}
	pk, err := repo.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return pk
}

func TestGetLocalizedCachesPerLanguage(t *testing.T) {
	rc, repo, _ := newCacheFixture(t)
	ctx := context.Background()
	pk := seedArticle(t, repo, map[string]any{"title_de": "Hallo", "title_en": "Hello"})

	de, err := rc.GetLocalized(ctx, "articles", pk, "de")
	if err != nil {
		t.Fatalf("GetLocalized failed: %v", err)
	}
	if de.Values["title"] != "Hallo" {
		t.Errorf("de title = %#v", de.Values["title"])
	}

	en, err := rc.GetLocalized(ctx, "articles", pk, "en")
	if err != nil {
		t.Fatalf("GetLocalized failed: %v", err)
	}
	if en.Values["title"] != "Hello" {
		t.Errorf("en title = %#v", en.Values["title"])
	}

	// The record is gone from the database, but the projection stays cached.
	if _, err := repo.Delete(ctx, "articles", pk); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	again, err := rc.GetLocalized(ctx, "articles", pk, "de")
	if err != nil || again == nil {
		t.Fatalf("expected cache hit, got %v, %v", again, err)
	}
}

func TestGetLocalizedUnknownLanguageUsesDefault(t *testing.T) {
	rc, repo, _ := newCacheFixture(t)
	ctx := context.Background()
	pk := seedArticle(t, repo, map[string]any{"title_de": "Hallo"})

	lr, err := rc.GetLocalized(ctx, "articles", pk, "sv")
	if err != nil {
		t.Fatalf("GetLocalized failed: %v", err)
	}
	if lr.Language.Requested != "de" {
		t.Errorf("requested = %q, want default de", lr.Language.Requested)
	}
}

func TestGetLocalizedUsesActiveLanguage(t *testing.T) {
	rc, repo, resolver := newCacheFixture(t)
	pk := seedArticle(t, repo, map[string]any{"title_de": "Hallo", "title_en": "Hello"})

	ctx := resolver.WithActive(context.Background(), "en")
	lr, err := rc.GetLocalized(ctx, "articles", pk, "")
	if err != nil {
		t.Fatalf("GetLocalized failed: %v", err)
	}
	if lr.Values["title"] != "Hello" {
		t.Errorf("title = %#v", lr.Values["title"])
	}
}

func TestGetLocalizedMissingRecord(t *testing.T) {
	rc, _, _ := newCacheFixture(t)

	lr, err := rc.GetLocalized(context.Background(), "articles", 12345, "de")
	if err != nil {
		t.Fatalf("GetLocalized failed: %v", err)
	}
	if lr != nil {
		t.Errorf("expected nil for absent record, got %+v", lr)
	}
}

func TestInvalidate(t *testing.T) {
	rc, repo, _ := newCacheFixture(t)
	ctx := context.Background()
	pk := seedArticle(t, repo, map[string]any{"title_de": "Alt"})

	if _, err := rc.GetLocalized(ctx, "articles", pk, "de"); err != nil {
		t.Fatalf("GetLocalized failed: %v", err)
	}

	if _, err := repo.SetLocalized(ctx, "articles", pk, "title", "de", "Neu"); err != nil {
		t.Fatalf("SetLocalized failed: %v", err)
	}
	rc.Invalidate(ctx, "articles", pk)

	lr, err := rc.GetLocalized(ctx, "articles", pk, "de")
	if err != nil {
		t.Fatalf("GetLocalized failed: %v", err)
	}
	if lr.Values["title"] != "Neu" {
		t.Errorf("title = %#v after invalidation", lr.Values["title"])
	}
}

func TestHandleChange(t *testing.T) {
	rc, repo, _ := newCacheFixture(t)
	ctx := context.Background()
	pk := seedArticle(t, repo, map[string]any{"title_de": "Alt"})

	if _, err := rc.GetLocalized(ctx, "articles", pk, "de"); err != nil {
		t.Fatalf("GetLocalized failed: %v", err)
	}
	if _, err := repo.SetLocalized(ctx, "articles", pk, "title", "de", "Neu"); err != nil {
		t.Fatalf("SetLocalized failed: %v", err)
	}

	rc.HandleChange(ctx, domain.ChangeEvent{
		Table:  "articles",
		PK:     pk,
		Action: domain.ChangeActionUpdated,
	})

	lr, _ := rc.GetLocalized(ctx, "articles", pk, "de")
	if lr.Values["title"] != "Neu" {
		t.Errorf("title = %#v after change event", lr.Values["title"])
	}

	// Table-wide events clear every projection of the table.
	rc.HandleChange(ctx, domain.ChangeEvent{Table: "articles", Action: domain.ChangeActionSynced})
}

func TestWarmUp(t *testing.T) {
	rc, repo, _ := newCacheFixture(t)
	ctx := context.Background()
	seedArticle(t, repo, map[string]any{"title_de": "Eins"})
	seedArticle(t, repo, map[string]any{"title_de": "Zwei"})

	if err := rc.WarmUp(ctx, []string{"articles"}, 10); err != nil {
		t.Fatalf("WarmUp failed: %v", err)
	}

	// Warmed entries serve without touching the database again.
	if _, err := repo.Delete(ctx, "articles", 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	lr, err := rc.GetLocalized(ctx, "articles", 1, "de")
	if err != nil || lr == nil {
		t.Fatalf("expected warm cache hit, got %v, %v", lr, err)
	}
	if lr.Values["title"] != "Eins" {
		t.Errorf("title = %#v", lr.Values["title"])
	}
}
