package config

import (
	"reflect"
	"testing"
)

func TestParseCommaSeparated(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", []string{}},
		{"plain", "de,en", []string{"de", "en"}},
		{"whitespace and case", " DE , en ", []string{"de", "en"}},
		{"region codes", "pt_BR,zh-Hant", []string{"pt-br", "zh-hant"}},
		{"trailing comma", "de,en,", []string{"de", "en"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCommaSeparated(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCommaSeparated(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFallbackMap(t *testing.T) {
	got := parseFallbackMap("default:en;de:en,fr; :x;broken")
	want := map[string][]string{
		"default": {"en"},
		"de":      {"en", "fr"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseFallbackMap() = %v, want %v", got, want)
	}

	if len(parseFallbackMap("")) != 0 {
		t.Error("empty input should yield an empty map")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Languages: LanguagesConfig{
				Codes:        []string{"de", "en"},
				Default:      "de",
				AutoPopulate: "off",
				Fallbacks:    map[string][]string{"default": {"en"}},
			},
			Database: DatabaseConfig{Driver: "sqlite", SQLitePath: "test.db"},
			Server:   ServerConfig{Port: 8080},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.Languages.Codes = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty language list")
	}

	cfg = base()
	cfg.Languages.Default = "fr"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for default outside the allow-list")
	}

	cfg = base()
	cfg.Languages.AutoPopulate = "everything"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown populate mode")
	}

	cfg = base()
	cfg.Database.Driver = "postgres"
	cfg.Database.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for postgres without DATABASE_URL")
	}

	cfg = base()
	cfg.Languages.Fallbacks = map[string][]string{"de": {"sv"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for fallback chain referencing unknown language")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MT_LANGUAGES", "")
	t.Setenv("MT_DEFAULT_LANGUAGE", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("SQLITE_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Languages.Default != "de" {
		t.Errorf("default language = %q, want first configured code", cfg.Languages.Default)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Schema.HideTranslationColumns {
		t.Error("hide flag should default to false")
	}
}
