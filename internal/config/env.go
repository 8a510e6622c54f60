package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// GhostscriptConfig controls discovery and invocation of the ink coverage tool.
type GhostscriptConfig struct {
	Candidates []string // probed in order before a PATH lookup
	Binary     string   // name looked up in PATH
	Timeout    time.Duration
	MaxProcs   int // concurrent gs processes
}

// WorkerConfig defines the background enrichment pool.
type WorkerConfig struct {
	Concurrency int
	QueueSize   int
}

// PricingConfig points at an optional YAML rate table.
type PricingConfig struct {
	TableFile string
}

// StoreConfig defines the optional Redis report store.
type StoreConfig struct {
	RedisURL string
	TTL      time.Duration
}

// FetchConfig defines how remote document references are spooled.
type FetchConfig struct {
	SpoolDir    string
	HTTPTimeout time.Duration
	S3Bucket    string // default bucket for bare keys
	S3Region    string
	S3Endpoint  string // S3-compatible endpoint, e.g. MinIO
	S3AccessKey string
	S3SecretKey string
	MaxAge      time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Port        string
	UploadDir   string
	Logging     LoggingConfig
	Axiom       AxiomConfig
	Ghostscript GhostscriptConfig
	Worker      WorkerConfig
	Pricing     PricingConfig
	Store       StoreConfig
	Fetch       FetchConfig
}

// DefaultGhostscriptPaths are the usual install locations on macOS and Linux.
var DefaultGhostscriptPaths = []string{
	"/opt/homebrew/bin/gs",
	"/usr/local/bin/gs",
	"/usr/bin/gs",
	"/opt/local/bin/gs",
}

// FromEnv loads configuration from environment with sensible defaults.
// A .env file in the working directory is applied first if present.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{Port: getEnv("PORT", "8080"), UploadDir: getEnv("UPLOAD_DIR", "uploads")}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/printmanager.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_printmanager",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Ghostscript = GhostscriptConfig{
		Candidates: parseList(getEnv("GS_PATHS", ""), DefaultGhostscriptPaths),
		Binary:     getEnv("GS_BINARY", "gs"),
		Timeout:    parseDuration(getEnv("GS_TIMEOUT", "5m"), 5*time.Minute),
		MaxProcs:   parseInt(getEnv("GS_MAX_PROCS", "2"), 2),
	}

	cfg.Worker = WorkerConfig{
		Concurrency: parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
		QueueSize:   parseInt(getEnv("WORKER_QUEUE_SIZE", "256"), 256),
	}

	cfg.Pricing = PricingConfig{TableFile: getEnv("PRICE_TABLE_FILE", "")}

	cfg.Store = StoreConfig{
		RedisURL: getEnv("REDIS_URL", ""),
		TTL:      parseDuration(getEnv("REPORT_TTL", "720h"), 720*time.Hour),
	}

	cfg.Fetch = FetchConfig{
		SpoolDir:    getEnv("SPOOL_DIR", ""),
		HTTPTimeout: parseDuration(getEnv("FETCH_TIMEOUT", "60s"), 60*time.Second),
		S3Bucket:    getEnv("AWS_S3_BUCKET", ""),
		S3Region:    getEnv("AWS_REGION", ""),
		S3Endpoint:  getEnv("AWS_S3_ENDPOINT", ""),
		S3AccessKey: getEnv("AWS_S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("AWS_S3_SECRET_KEY", ""),
		MaxAge:      parseDuration(getEnv("SPOOL_MAX_AGE", "24h"), 24*time.Hour),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// parseList splits a colon separated list like PATH.
func parseList(s string, def []string) []string {
	if strings.TrimSpace(s) == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, p := range strings.Split(s, ":") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
