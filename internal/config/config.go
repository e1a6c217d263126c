package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Languages LanguagesConfig
	Models    ModelsConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Schema    SchemaConfig
	Gemini    GeminiConfig
	OpenAI    OpenAIConfig
	Google    GoogleTranslateConfig
	Logging   LoggingConfig
}

type LanguagesConfig struct {
	Codes           []string
	Default         string
	EnableFallbacks bool
	Fallbacks       map[string][]string
	AutoPopulate    string
}

// ModelsConfig points at the declarative model descriptor file the daemon
// and tools register at startup. Empty means no models; library embedders
// register programmatically instead.
type ModelsConfig struct {
	File string
}

type DatabaseConfig struct {
	Driver       string
	URL          string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type ServerConfig struct {
	Port       int
	AdminToken string
}

type SchemaConfig struct {
	// HideTranslationColumns excludes auto-generated per-language columns
	// from the change report consumed by external migration tooling. The
	// syncfields tool remains responsible for those columns either way.
	HideTranslationColumns bool
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EnableFallback bool
}

type GoogleTranslateConfig struct {
	APIKey          string
	CredentialsFile string
	TokenFile       string
	ProjectID       string
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Languages: LanguagesConfig{
			Codes:           parseCommaSeparated(getEnv("MT_LANGUAGES", "de,en")),
			Default:         getEnv("MT_DEFAULT_LANGUAGE", ""),
			EnableFallbacks: getEnvBool("MT_ENABLE_FALLBACKS", true),
			Fallbacks:       parseFallbackMap(getEnv("MT_FALLBACK_LANGUAGES", "")),
			AutoPopulate:    getEnv("MT_AUTO_POPULATE", "off"),
		},
		Models: ModelsConfig{
			File: getEnv("MT_MODELS_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "sqlite"),
			URL:          getEnv("DATABASE_URL", ""),
			SQLitePath:   getEnv("SQLITE_PATH", "data/modeltrans.db"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:       getEnvInt("SERVER_PORT", 8080),
			AdminToken: getEnv("ADMIN_TOKEN", ""),
		},
		Schema: SchemaConfig{
			HideTranslationColumns: getEnvBool("MT_HIDE_TRANSLATION_COLUMNS", false),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", true),
		},
		Google: GoogleTranslateConfig{
			APIKey:          getEnv("GOOGLE_TRANSLATE_API_KEY", ""),
			CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
			TokenFile:       getEnv("GOOGLE_TOKEN_FILE", ""),
			ProjectID:       getEnv("GOOGLE_PROJECT_ID", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if cfg.Languages.Default == "" && len(cfg.Languages.Codes) > 0 {
		cfg.Languages.Default = cfg.Languages.Codes[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Languages.Codes) == 0 {
		return fmt.Errorf("MT_LANGUAGES is required")
	}
	if !containsString(c.Languages.Codes, c.Languages.Default) {
		return fmt.Errorf("MT_DEFAULT_LANGUAGE %q is not in MT_LANGUAGES", c.Languages.Default)
	}
	switch c.Languages.AutoPopulate {
	case "off", "all", "default", "required":
	default:
		return fmt.Errorf("MT_AUTO_POPULATE must be one of off, all, default, required (got %q)", c.Languages.AutoPopulate)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite (got %q)", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port)
	}
	for lang, chain := range c.Languages.Fallbacks {
		if lang != "default" && !containsString(c.Languages.Codes, lang) {
			return fmt.Errorf("MT_FALLBACK_LANGUAGES references unknown language %q", lang)
		}
		for _, code := range chain {
			if !containsString(c.Languages.Codes, code) {
				return fmt.Errorf("MT_FALLBACK_LANGUAGES chain for %q references unknown language %q", lang, code)
			}
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := normalizeCode(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseFallbackMap parses "default:en;de:en,fr" into chain lookups.
func parseFallbackMap(value string) map[string][]string {
	result := make(map[string][]string)
	if value == "" {
		return result
	}
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, chain, found := strings.Cut(entry, ":")
		if !found {
			continue
		}
		key = normalizeCode(key)
		if key == "" {
			continue
		}
		codes := parseCommaSeparated(chain)
		if len(codes) > 0 {
			result[key] = codes
		}
	}
	return result
}

// normalizeCode lowercases a language code and canonicalizes the separator
// ("pt_BR" and "PT-br" both become "pt-br"). "default" passes through for
// fallback map keys.
func normalizeCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "_", "-")
}

func containsString(items []string, item string) bool {
	for _, s := range items {
		if s == item {
			return true
		}
	}
	return false
}
