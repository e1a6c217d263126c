package translate

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/pkg/errors"
)

func TestLoadModels(t *testing.T) {
	reg := NewRegistry(newTestResolver(t), zap.NewNop())

	payload := `[
		{
			"table": "articles",
			"fields": [
				{"name": "title", "kind": "string", "max_len": 200},
				{"name": "body", "kind": "text", "nullable": true},
				{"name": "views", "kind": "int"}
			],
			"translate": {
				"fields": ["title", "body"],
				"fallback_undefined": {"title": "??"}
			}
		},
		{
			"table": "pages",
			"pk": "page_id",
			"fields": [{"name": "heading", "kind": "string"}],
			"translate": {"fields": ["heading"]}
		}
	]`

	n, err := LoadModels(reg, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("LoadModels failed: %v", err)
	}
	if n != 2 {
		t.Errorf("registered = %d, want 2", n)
	}

	mt, err := reg.OptionsFor("articles")
	if err != nil {
		t.Fatalf("OptionsFor failed: %v", err)
	}
	if _, ok := mt.Model.Field("title_pt_br"); !ok {
		t.Error("articles was not expanded with language slots")
	}
	if got := mt.UndefinedMarker("title"); got != "??" {
		t.Errorf("undefined marker = %v, want ??", got)
	}

	pages, err := reg.OptionsFor("pages")
	if err != nil {
		t.Fatalf("OptionsFor failed: %v", err)
	}
	if pages.Model.PKName != "page_id" {
		t.Errorf("pk = %q, want page_id", pages.Model.PKName)
	}
}

func TestLoadModelsRejectsUnknownKind(t *testing.T) {
	reg := NewRegistry(newTestResolver(t), zap.NewNop())

	payload := `[{
		"table": "articles",
		"fields": [{"name": "title", "kind": "varchar"}],
		"translate": {"fields": ["title"]}
	}]`

	_, err := LoadModels(reg, strings.NewReader(payload))
	if errors.GetCode(err) != errors.CodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestLoadModelsRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(newTestResolver(t), zap.NewNop())

	entry := `{
		"table": "articles",
		"fields": [{"name": "title", "kind": "string"}],
		"translate": {"fields": ["title"]}
	}`
	payload := "[" + entry + "," + entry + "]"

	_, err := LoadModels(reg, strings.NewReader(payload))
	if errors.GetCode(err) != errors.CodeAlreadyRegistered {
		t.Fatalf("err = %v, want already registered", err)
	}
}

func TestLoadModelsBadJSON(t *testing.T) {
	reg := NewRegistry(newTestResolver(t), zap.NewNop())

	if _, err := LoadModels(reg, strings.NewReader(`{"not": "an array"}`)); err == nil {
		t.Fatal("malformed file must be rejected")
	}
}
