package store

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/translate"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

type fakeSink struct {
	events []domain.ChangeEvent
}

func (f *fakeSink) Publish(event domain.ChangeEvent) {
	f.events = append(f.events, event)
}

func (f *fakeSink) last(t *testing.T) domain.ChangeEvent {
	t.Helper()
	if len(f.events) == 0 {
		t.Fatal("no events published")
	}
	return f.events[len(f.events)-1]
}

type storeFixture struct {
	repo     *Repository
	registry *translate.Registry
	resolver *lang.Resolver
	db       *Database
	sink     *fakeSink
}

func newStoreFixture(t *testing.T, populate translate.PopulateMode) *storeFixture {
	t.Helper()
	logger := zap.NewNop()

	db, err := OpenSQLiteMemory(logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	resolver, err := lang.NewResolver([]string{"de", "en", "pt-br"}, "de", true, nil)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	registry := translate.NewRegistry(resolver, logger)
	model := schema.NewModel("articles",
		schema.Field{Name: "title", Kind: schema.KindString, MaxLen: 200},
		schema.Field{Name: "body", Kind: schema.KindText, Nullable: true},
		schema.Field{Name: "views", Kind: schema.KindInt},
	)
	if err := registry.Register(model, translate.Options{Fields: []string{"title", "body"}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := db.DB().Exec(schema.CreateTableStatement(model, schema.DialectSQLite)); err != nil {
		t.Fatalf("create table: %v", err)
	}

	sink := &fakeSink{}
	return &storeFixture{
		repo:     NewRepository(db, registry, populate, sink, logger),
		registry: registry,
		resolver: resolver,
		db:       db,
		sink:     sink,
	}
}

func (s *storeFixture) create(t *testing.T, values map[string]any) int64 {
	t.Helper()
	rec := domain.NewRecord("articles")
	for k, v := range values {
		rec.Set(k, v)
	}
	pk, err := s.repo.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return pk
}

func TestCreateAndGet(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	ctx := context.Background()

	pk := s.create(t, map[string]any{
		"title":    "legacy",
		"title_de": "Hallo",
		"title_en": "Hello",
		"views":    3,
	})
	if pk == 0 {
		t.Fatal("expected a primary key")
	}
	if ev := s.sink.last(t); ev.Action != domain.ChangeActionCreated || ev.PK != pk {
		t.Errorf("unexpected event: %+v", ev)
	}

	rec, err := s.repo.Get(ctx, "articles", pk)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec == nil {
		t.Fatal("record not found")
	}
	if got := rec.Values["title_de"]; got != "Hallo" {
		t.Errorf("title_de = %#v", got)
	}
	if got := rec.Values["views"]; got != int64(3) {
		t.Errorf("views = %#v, want int64", got)
	}
	if got := rec.Values["body"]; got != nil {
		t.Errorf("body = %#v, want nil", got)
	}

	missing, err := s.repo.Get(ctx, "articles", 99999)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for absent record")
	}
}

func TestCreateAutoPopulates(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateAll)
	ctx := context.Background()

	pk := s.create(t, map[string]any{"title": "Base"})

	rec, err := s.repo.Get(ctx, "articles", pk)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	for _, slot := range []string{"title_de", "title_en", "title_pt_br"} {
		if rec.Values[slot] != "Base" {
			t.Errorf("slot %q = %#v", slot, rec.Values[slot])
		}
	}
}

func TestListRewriteExactSlot(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	s.create(t, map[string]any{"title_de": "Katze", "title_en": "Cat"})
	s.create(t, map[string]any{"title_de": "Hund", "title_en": ""})

	ctx := s.resolver.WithActive(context.Background(), "en")
	off := false

	recs, err := s.repo.List(ctx, Query{
		Table:     "articles",
		Conds:     []Cond{{Key: "title", Value: "Cat"}},
		Fallbacks: &off,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 || recs[0].Values["title_en"] != "Cat" {
		t.Fatalf("unexpected result: %+v", recs)
	}
}

func TestListRawBypassesRewrite(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	s.create(t, map[string]any{"title": "legacy", "title_de": "Alt", "title_en": "Old"})

	ctx := s.resolver.WithActive(context.Background(), "en")

	recs, err := s.repo.List(ctx, Query{
		Table: "articles",
		Conds: []Cond{{Key: "title", Value: "legacy"}},
		Raw:   true,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("raw condition must hit the base column: %+v", recs)
	}

	recs, err = s.repo.List(ctx, Query{
		Table: "articles",
		Conds: []Cond{{Key: "title", Value: "Old"}},
		Raw:   true,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("raw condition must ignore slot values: %+v", recs)
	}
}

func TestListFallbackFindsDefaultSlot(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	s.create(t, map[string]any{"title_de": "Katze", "title_en": "Cat"})
	s.create(t, map[string]any{"title_de": "Hund", "title_en": ""})

	ctx := s.resolver.WithActive(context.Background(), "en")

	// The second record has no English title, so the condition falls back to
	// the German slot.
	recs, err := s.repo.List(ctx, Query{
		Table: "articles",
		Conds: []Cond{{Key: "title__icontains", Value: "hund"}},
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 || recs[0].Values["title_de"] != "Hund" {
		t.Fatalf("unexpected result: %+v", recs)
	}

	// The first record's English slot is defined, so its German value is
	// never consulted.
	recs, err = s.repo.List(ctx, Query{
		Table: "articles",
		Conds: []Cond{{Key: "title__icontains", Value: "katze"}},
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("defined slot must shadow fallbacks: %+v", recs)
	}
}

func TestListOrderAndLimit(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	s.create(t, map[string]any{"title_de": "A", "views": 1})
	s.create(t, map[string]any{"title_de": "B", "views": 5})
	s.create(t, map[string]any{"title_de": "C", "views": 3})

	recs, err := s.repo.List(context.Background(), Query{
		Table:   "articles",
		OrderBy: []string{"-views"},
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 2 || recs[0].Values["views"] != int64(5) || recs[1].Values["views"] != int64(3) {
		t.Fatalf("unexpected order: %+v", recs)
	}
}

func TestCount(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	s.create(t, map[string]any{"views": 1})
	s.create(t, map[string]any{"views": 5})

	n, err := s.repo.Count(context.Background(), Query{
		Table: "articles",
		Conds: []Cond{{Key: "views__gte", Value: 2}},
	})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestUpdateRewritesToActiveSlot(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	pk := s.create(t, map[string]any{"title": "legacy", "title_de": "Alt", "title_en": "Old"})

	ctx := s.resolver.WithActive(context.Background(), "en")
	affected, err := s.repo.Update(ctx, "articles", pk, map[string]any{"title": "New"}, true)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("affected = %d", affected)
	}

	rec, _ := s.repo.Get(ctx, "articles", pk)
	if rec.Values["title_en"] != "New" {
		t.Errorf("title_en = %#v", rec.Values["title_en"])
	}
	if rec.Values["title_de"] != "Alt" || rec.Values["title"] != "legacy" {
		t.Errorf("other slots must stay untouched: %+v", rec.Values)
	}
	if ev := s.sink.last(t); ev.Action != domain.ChangeActionUpdated {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestSetLocalized(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	pk := s.create(t, map[string]any{"title_de": "Hallo"})
	ctx := context.Background()

	affected, err := s.repo.SetLocalized(ctx, "articles", pk, "title", "PT_br", "Olá")
	if err != nil {
		t.Fatalf("SetLocalized failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("affected = %d", affected)
	}

	rec, _ := s.repo.Get(ctx, "articles", pk)
	if rec.Values["title_pt_br"] != "Olá" {
		t.Errorf("title_pt_br = %#v", rec.Values["title_pt_br"])
	}

	ev := s.sink.last(t)
	if ev.Field != "title" || ev.Language != "pt-br" || ev.Action != domain.ChangeActionUpdated {
		t.Errorf("unexpected event: %+v", ev)
	}

	if _, err := s.repo.SetLocalized(ctx, "articles", pk, "title", "sv", "Hej"); err == nil {
		t.Error("unsupported language must be rejected")
	}
	if _, err := s.repo.SetLocalized(ctx, "articles", pk, "views", "de", 1); err == nil {
		t.Error("untranslated field must be rejected")
	}
}

func TestSetLocalizedDefaultsToActive(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	pk := s.create(t, map[string]any{"title_de": "Hallo"})

	ctx := s.resolver.WithActive(context.Background(), "en")
	if _, err := s.repo.SetLocalized(ctx, "articles", pk, "title", "", "Hello"); err != nil {
		t.Fatalf("SetLocalized failed: %v", err)
	}

	rec, _ := s.repo.Get(ctx, "articles", pk)
	if rec.Values["title_en"] != "Hello" {
		t.Errorf("title_en = %#v", rec.Values["title_en"])
	}
}

func TestUpdateDefaultFromBase(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	ctx := context.Background()

	first := s.create(t, map[string]any{"title": "Legacy"})
	second := s.create(t, map[string]any{"title": "Other", "title_de": "Schon da"})

	affected, err := s.repo.UpdateDefaultFromBase(ctx, "articles", []string{"title"})
	if err != nil {
		t.Fatalf("UpdateDefaultFromBase failed: %v", err)
	}
	if affected["title"] != 1 {
		t.Errorf("affected = %v, want title:1", affected)
	}

	rec, _ := s.repo.Get(ctx, "articles", first)
	if rec.Values["title_de"] != "Legacy" {
		t.Errorf("empty default slot not filled: %#v", rec.Values["title_de"])
	}
	rec, _ = s.repo.Get(ctx, "articles", second)
	if rec.Values["title_de"] != "Schon da" {
		t.Errorf("filled slot must not be overwritten: %#v", rec.Values["title_de"])
	}
}

func TestDelete(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	pk := s.create(t, map[string]any{"title_de": "Weg"})
	ctx := context.Background()

	affected, err := s.repo.Delete(ctx, "articles", pk)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("affected = %d", affected)
	}
	if ev := s.sink.last(t); ev.Action != domain.ChangeActionDeleted {
		t.Errorf("unexpected event: %+v", ev)
	}

	rec, err := s.repo.Get(ctx, "articles", pk)
	if err != nil || rec != nil {
		t.Errorf("record should be gone: %+v, %v", rec, err)
	}
}

func TestListUnsupportedLookups(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	ctx := context.Background()

	_, err := s.repo.List(ctx, Query{
		Table: "articles",
		Conds: []Cond{{Key: "title__isnull", Value: true}},
	})
	if errors.GetCode(err) != errors.CodeUnsupportedLookup {
		t.Errorf("expected unsupported lookup, got %v", err)
	}

	_, err = s.repo.List(ctx, Query{
		Table: "articles",
		Conds: []Cond{{Key: "title__regex", Value: "^K"}},
	})
	if errors.GetCode(err) != errors.CodeUnsupportedLookup {
		t.Errorf("expected unsupported lookup for sqlite regex, got %v", err)
	}
}

func TestListUnregisteredTable(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	ctx := context.Background()

	if _, err := s.db.DB().Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.db.DB().Exec(`INSERT INTO notes (label) VALUES ('plain')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	recs, err := s.repo.List(ctx, Query{Table: "notes"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 || recs[0].PK != 1 || recs[0].Values["label"] != "plain" {
		t.Fatalf("unexpected result: %+v", recs)
	}

	if _, err := s.repo.List(ctx, Query{Table: "notes; DROP TABLE notes"}); err == nil {
		t.Error("invalid table name must be rejected")
	}
}

func TestLoadFixtures(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	ctx := context.Background()

	payload := `[
		{"table": "articles", "pk": 1, "fields": {"title": "legacy", "title_de": "Hallo", "title_en": "Hello", "views": 7}},
		{"table": "articles", "pk": 2, "fields": {"title_de": "Zwei"}}
	]`

	n, err := LoadFixtures(ctx, s.db, s.registry, strings.NewReader(payload), translate.PopulateOff, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded = %d, want 2", n)
	}

	rec, err := s.repo.Get(ctx, "articles", 1)
	if err != nil || rec == nil {
		t.Fatalf("Get failed: %v, %v", rec, err)
	}
	if rec.Values["title_de"] != "Hallo" || rec.Values["views"] != int64(7) {
		t.Errorf("unexpected values: %+v", rec.Values)
	}

	// Loading again replaces by primary key instead of failing.
	if _, err := LoadFixtures(ctx, s.db, s.registry, strings.NewReader(payload), translate.PopulateOff, zap.NewNop()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	count, err := s.repo.Count(ctx, Query{Table: "articles"})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	if _, err := LoadFixtures(ctx, s.db, s.registry, strings.NewReader(`[{"table": "", "pk": 1}]`), translate.PopulateOff, nil); err == nil {
		t.Error("fixture without table must be rejected")
	}
}

func TestLoadFixturesPopulatesSlots(t *testing.T) {
	s := newStoreFixture(t, translate.PopulateOff)
	ctx := context.Background()

	payload := `[
		{"table": "articles", "pk": 5, "fields": {"title": "Shared", "title_en": "Explicit"}}
	]`

	if _, err := LoadFixtures(ctx, s.db, s.registry, strings.NewReader(payload), translate.PopulateAll, zap.NewNop()); err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}

	rec, err := s.repo.Get(ctx, "articles", 5)
	if err != nil || rec == nil {
		t.Fatalf("Get failed: %v, %v", rec, err)
	}
	if rec.Values["title_de"] != "Shared" {
		t.Errorf("title_de = %v, want populated base value", rec.Values["title_de"])
	}
	if rec.Values["title_en"] != "Explicit" {
		t.Errorf("title_en = %v, explicit slot must win", rec.Values["title_en"])
	}
}
