package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the StoryChannel server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	TextGen    TextGenConfig
	Generation GenerationConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// TextGenConfig configures the external text-generation collaborator and
// the retry policy wrapped around it.
type TextGenConfig struct {
	Provider       string
	Timeout        time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxJitter time.Duration
	OpenAI         OpenAIConfig
	Gemini         GeminiConfig
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GenerationConfig bounds the admission controller and the chunked worker.
type GenerationConfig struct {
	MinScriptChars   int
	MaxScriptChars   int
	MaxChunkChars    int
	SubmitsPerMinute int
	InterChunkDelay  time.Duration
	CacheTTL         time.Duration
}

var validProviders = map[string]bool{
	"openai": true,
	"gemini": true,
	"mock":   true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("STORYCHANNEL_PORT", 8080),
			Env:  envString("STORYCHANNEL_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		TextGen: TextGenConfig{
			Provider:       os.Getenv("TEXTGEN_PROVIDER"),
			Timeout:        envDuration("TEXTGEN_TIMEOUT", 90*time.Second),
			MaxAttempts:    envInt("TEXTGEN_MAX_ATTEMPTS", 3),
			RetryBaseDelay: envDuration("TEXTGEN_RETRY_BASE_DELAY", 2*time.Second),
			RetryMaxJitter: envDuration("TEXTGEN_RETRY_MAX_JITTER", time.Second),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			},
			Gemini: GeminiConfig{
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				Model:   envString("GEMINI_MODEL", "gemini-1.5-flash"),
				BaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			},
		},
		Generation: GenerationConfig{
			MinScriptChars:   envInt("GENERATION_MIN_SCRIPT_CHARS", 50),
			MaxScriptChars:   envInt("GENERATION_MAX_SCRIPT_CHARS", 50000),
			MaxChunkChars:    envInt("GENERATION_MAX_CHUNK_CHARS", 3000),
			SubmitsPerMinute: envInt("GENERATION_SUBMITS_PER_MINUTE", 5),
			InterChunkDelay:  envDuration("GENERATION_INTER_CHUNK_DELAY", 2*time.Second),
			CacheTTL:         envDuration("GENERATION_CACHE_TTL", 30*24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.TextGen.Provider == "" {
		return fmt.Errorf("TEXTGEN_PROVIDER is required")
	}
	if !validProviders[c.TextGen.Provider] {
		return fmt.Errorf("TEXTGEN_PROVIDER must be one of openai, gemini, mock; got %q", c.TextGen.Provider)
	}
	if c.TextGen.Provider == "openai" && c.TextGen.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when TEXTGEN_PROVIDER is openai")
	}
	if c.TextGen.Provider == "gemini" && c.TextGen.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when TEXTGEN_PROVIDER is gemini")
	}
	if c.TextGen.MaxAttempts < 1 {
		return fmt.Errorf("TEXTGEN_MAX_ATTEMPTS must be at least 1")
	}

	if c.Generation.MinScriptChars <= 0 {
		return fmt.Errorf("GENERATION_MIN_SCRIPT_CHARS must be positive")
	}
	if c.Generation.MaxScriptChars <= c.Generation.MinScriptChars {
		return fmt.Errorf("GENERATION_MAX_SCRIPT_CHARS must be greater than GENERATION_MIN_SCRIPT_CHARS")
	}
	if c.Generation.SubmitsPerMinute <= 0 {
		return fmt.Errorf("GENERATION_SUBMITS_PER_MINUTE must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
