package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Config holds everything read from the environment
type Config struct {
	// Storage
	DBPath string `env:"W3A11Y_DB_PATH" envDefault:"w3a11y.db"`

	// Server
	ListenAddr     string        `env:"W3A11Y_LISTEN_ADDR" envDefault:":8080"`
	PublicURL      string        `env:"W3A11Y_PUBLIC_URL" envDefault:"http://localhost:8080"`
	AdminToken     string        `env:"W3A11Y_ADMIN_TOKEN"`
	NonceSecret    string        `env:"W3A11Y_NONCE_SECRET"`
	NonceLifetime  time.Duration `env:"W3A11Y_NONCE_LIFETIME" envDefault:"24h"`
	MaxBatchSize   int           `env:"W3A11Y_MAX_BATCH_SIZE" envDefault:"50"`
	BatchWorkers   int           `env:"W3A11Y_BATCH_WORKERS" envDefault:"4"`
	RequestTimeout time.Duration `env:"W3A11Y_REQUEST_TIMEOUT" envDefault:"5m"`

	// Run registry (empty address keeps runs in memory)
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Alt text provider: gemini or openai
	DescriberProvider string   `env:"W3A11Y_DESCRIBER" envDefault:"gemini"`
	GeminiAPIKeys     []string `env:"GEMINI_API_KEYS" envSeparator:","`
	GeminiModel       string   `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiImageModel  string   `env:"GEMINI_IMAGE_MODEL" envDefault:"gemini-2.5-flash-image"`
	OpenAIAPIKey      string   `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string   `env:"OPENAI_BASE_URL"`
	OpenAIModel       string   `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// Object storage
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"media"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioSecure    bool   `env:"MINIO_SECURE" envDefault:"true"`
	MediaDir       string `env:"W3A11Y_MEDIA_DIR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	// a missing .env is fine, the environment may carry everything
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %v", err)
	}
	cfg.DescriberProvider = strings.ToLower(strings.TrimSpace(cfg.DescriberProvider))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("W3A11Y_DB_PATH must not be empty")
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("W3A11Y_MAX_BATCH_SIZE must be at least 1")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("W3A11Y_BATCH_WORKERS must be at least 1")
	}
	if c.NonceLifetime < time.Minute {
		return fmt.Errorf("W3A11Y_NONCE_LIFETIME must be at least 1m")
	}
	switch c.DescriberProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("W3A11Y_DESCRIBER must be gemini or openai, got %q", c.DescriberProvider)
	}
	return nil
}

// ValidateServer checks the values only the HTTP server needs
func (c *Config) ValidateServer() error {
	if c.AdminToken == "" {
		return fmt.Errorf("W3A11Y_ADMIN_TOKEN is required")
	}
	if len(c.NonceSecret) < 16 {
		return fmt.Errorf("W3A11Y_NONCE_SECRET must be at least 16 characters")
	}
	switch c.DescriberProvider {
	case "gemini":
		if len(c.GeminiAPIKeys) == 0 {
			return fmt.Errorf("GEMINI_API_KEYS is required for the gemini describer")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai describer")
		}
	}
	if c.MinioEndpoint == "" && c.MediaDir == "" {
		return fmt.Errorf("either MINIO_ENDPOINT or W3A11Y_MEDIA_DIR is required")
	}
	return nil
}

// UseRedis reports whether runs are tracked in redis
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}

// UseMinio reports whether media objects live in MinIO
func (c *Config) UseMinio() bool {
	return c.MinioEndpoint != ""
}
