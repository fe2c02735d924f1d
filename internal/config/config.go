package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          string        `yaml:"port"`
	LogLevel      slog.Level    `yaml:"-"`
	LogLevelName  string        `yaml:"log_level"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	MaxUploadMB   int64         `yaml:"max_upload_mb"`
	CORSOrigins   []string      `yaml:"cors_origins"`
	Database      Database      `yaml:"database"`
	Redis         Redis         `yaml:"redis"`
	Archive       Archive       `yaml:"archive"`
	UploadTempDir string        `yaml:"upload_temp_dir"`
}

// Database: an empty URL selects the in-memory store.
type Database struct {
	URL            string `yaml:"url"`
	ConnectRetries int    `yaml:"connect_retries"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
}

// Redis: an empty URL disables the report cache.
type Redis struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Archive: an empty bucket disables archival of uploaded files.
type Archive struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE
// (if any), then applies environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	cfg.LogLevel = parseLevel(cfg.LogLevelName)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Port:          "8080",
		LogLevelName:  "info",
		HTTPTimeout:   15 * time.Second,
		MaxUploadMB:   32,
		CORSOrigins:   []string{"*"},
		UploadTempDir: os.TempDir(),
		Database:      Database{ConnectRetries: 5, MaxOpenConns: 10},
		Redis:         Redis{CacheTTL: 5 * time.Minute},
		Archive:       Archive{Region: "us-east-1", Prefix: "uploads"},
	}
}

func (c *Config) readFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.LogLevelName = envOr("LOG_LEVEL", c.LogLevelName)
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			c.HTTPTimeout = d
		}
	}
	c.MaxUploadMB = int64(atoiOr("MAX_UPLOAD_MB", int(c.MaxUploadMB)))
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	c.UploadTempDir = envOr("UPLOAD_TEMP_DIR", c.UploadTempDir)

	c.Database.URL = envOr("DATABASE_URL", c.Database.URL)
	c.Database.ConnectRetries = atoiOr("DB_CONNECT_RETRIES", c.Database.ConnectRetries)

	c.Redis.URL = envOr("REDIS_URL", c.Redis.URL)
	if v := atoiOr("CACHE_TTL_SECONDS", -1); v >= 0 {
		c.Redis.CacheTTL = time.Duration(v) * time.Second
	}

	c.Archive.Bucket = envOr("S3_BUCKET", c.Archive.Bucket)
	c.Archive.Region = envOr("S3_REGION", c.Archive.Region)
	c.Archive.Prefix = envOr("S3_PREFIX", c.Archive.Prefix)
	c.Archive.Endpoint = envOr("S3_ENDPOINT", c.Archive.Endpoint)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func atoiOr(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
