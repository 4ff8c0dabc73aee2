package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for the server environment variables.
type Config struct {
	FilesDir          string        `envconfig:"FILES_DIR" default:"uploads"`
	DBPath            string        `envconfig:"DB_PATH" default:"files.db"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	MaxGenerateSize   int64         `envconfig:"MAX_GENERATE_SIZE" default:"10737418240"`
	DefaultSizeMB     int64         `envconfig:"DEFAULT_SIZE_MB" default:"100"`
	KeepGeneratedFor  time.Duration `envconfig:"KEEP_GENERATED_FOR" default:"0"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool          `split_words:"true" default:"true"`
		ServiceName  string        `split_words:"true" default:"resumable_downloader"`
		OTLPEndpoint string        `envconfig:"TELEMETRY_OTLP_ENDPOINT"`
		OTLPInsecure bool          `envconfig:"TELEMETRY_OTLP_INSECURE" default:"true"`
		OTLPInterval time.Duration `envconfig:"TELEMETRY_OTLP_INTERVAL" default:"30s"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:3000"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30m"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
		AllowedOrigins  []string      `split_words:"true" default:"*"`
	}
}

// ClientConfig holds the defaults of the rdl command line client. Variables
// are read with the RDL_ prefix, e.g. RDL_SERVER_URL.
type ClientConfig struct {
	ServerURL         string        `split_words:"true" default:"http://localhost:3000"`
	ChunkSize         int64         `split_words:"true" default:"1048576"`
	FetchTimeout      time.Duration `split_words:"true" default:"30s"`
	MaxParallel       int           `split_words:"true" default:"3"`
	LogLevel          string        `split_words:"true" default:"WARN"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	// Telemetry is pushed over OTLP only; it is off unless an endpoint is set.
	Telemetry struct {
		ServiceName  string        `split_words:"true" default:"rdl"`
		OTLPEndpoint string        `envconfig:"OTLP_ENDPOINT"`
		OTLPInsecure bool          `envconfig:"OTLP_INSECURE" default:"true"`
		OTLPInterval time.Duration `envconfig:"OTLP_INTERVAL" default:"10s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.MaxGenerateSize < 0 {
		return nil, fmt.Errorf("MAX_GENERATE_SIZE must not be negative, got %d", cfg.MaxGenerateSize)
	}

	return &cfg, nil
}

// LoadClientConfig reads the RDL_ prefixed environment variables.
func LoadClientConfig() (*ClientConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := envconfig.Process("rdl", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("RDL_CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}

	return &cfg, nil
}

// loadDotEnv loads a .env file from the working directory when one exists.
// Variables already present in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env: %w", err)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	return parseLevel(c.LogLevel)
}

func (c *ClientConfig) SlogLevel() slog.Level {
	return parseLevel(c.LogLevel)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
