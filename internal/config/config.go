package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const dateLayout = "2006-01-02"

type Config struct {
	// Secrets (from .env)
	TiingoAPIKey string
	APIKey       string
	WebhookURL   string

	// Service
	ServiceName     string
	APIPort         int
	CORSAllowOrigin string

	// Symbols to ingest and backfill
	Symbols []string

	// Backfill
	ChunkSpanDays    int
	TargetStartDate  time.Time
	WorkerURL        string // empty means in-process worker
	WorkerTimeout    time.Duration
	CheckpointPrefix string
	BackfillInterval time.Duration
	DailyInterval    time.Duration

	// Object store (S3-compatible)
	StoreEndpoint  string
	StoreAccessKey string
	StoreSecretKey string
	StoreBucket    string
	StoreUseSSL    bool

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	targetStart, err := envDate("TARGET_START_DATE", time.Now().UTC().AddDate(-5, 0, 0))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		// Secrets
		TiingoAPIKey: envStr("TIINGO_API_KEY", ""),
		APIKey:       envStr("API_KEY", ""),
		WebhookURL:   envStr("WEBHOOK_URL", ""),

		// Service
		ServiceName:     envStr("SERVICE_NAME", "PricefeedBackend"),
		APIPort:         envInt("API_PORT", 3002),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		Symbols: envList("SYMBOLS", []string{"SPY", "TLT", "GDX", "XLF", "DBC", "TIP", "IWM"}),

		// Backfill
		ChunkSpanDays:    envInt("CHUNK_SPAN_DAYS", 180),
		TargetStartDate:  targetStart,
		WorkerURL:        envStr("WORKER_URL", ""),
		WorkerTimeout:    envDuration("WORKER_TIMEOUT", 15*time.Minute),
		CheckpointPrefix: envStr("CHECKPOINT_PREFIX", "backfill/checkpoints"),
		BackfillInterval: envDuration("BACKFILL_INTERVAL", 1*time.Hour),
		DailyInterval:    envDuration("DAILY_INTERVAL", 24*time.Hour),

		// Object store
		StoreEndpoint:  envStr("STORE_ENDPOINT", "localhost:9000"),
		StoreAccessKey: envStr("STORE_ACCESS_KEY", ""),
		StoreSecretKey: envStr("STORE_SECRET_KEY", ""),
		StoreBucket:    envStr("STORE_BUCKET", "pricefeed"),
		StoreUseSSL:    envBool("STORE_USE_SSL", false),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "pricefeed"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.TiingoAPIKey == "" && c.WorkerURL == "" {
		errs = append(errs, "TIINGO_API_KEY is required when running the in-process worker")
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one ticker")
	}
	if c.ChunkSpanDays <= 0 {
		errs = append(errs, "CHUNK_SPAN_DAYS must be positive")
	}
	if !c.TargetStartDate.Before(time.Now().UTC()) {
		errs = append(errs, "TARGET_START_DATE must be in the past")
	}
	if c.StoreAccessKey == "" || c.StoreSecretKey == "" {
		errs = append(errs, "STORE_ACCESS_KEY and STORE_SECRET_KEY are required")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set — REST API has no authentication")
	}
	if c.WebhookURL == "" {
		fmt.Println("[WARN] WEBHOOK_URL not set — backfill completion will not be announced")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Pricefeed Backend Configuration ===")
	fmt.Printf("Symbols: %s\n", strings.Join(c.Symbols, ", "))
	fmt.Println("--------------------------------------")
	fmt.Println("Backfill:")
	fmt.Printf("  Chunk span: %d days\n", c.ChunkSpanDays)
	fmt.Printf("  Target start: %s\n", c.TargetStartDate.Format(dateLayout))
	fmt.Printf("  Interval: %s\n", c.BackfillInterval)
	fmt.Printf("  Worker timeout: %s\n", c.WorkerTimeout)
	if c.WorkerURL != "" {
		fmt.Printf("  Worker: remote (%s)\n", c.WorkerURL)
	} else {
		fmt.Println("  Worker: in-process")
	}
	fmt.Printf("  Checkpoints: %s/\n", c.CheckpointPrefix)
	fmt.Println("--------------------------------------")
	fmt.Printf("Object store: %s bucket=%s ssl=%v\n", c.StoreEndpoint, c.StoreBucket, c.StoreUseSSL)
	fmt.Printf("Database: %s:%d/%s\n", c.DBHost, c.DBPort, c.DBName)
	fmt.Printf("Daily scrape: every %s\n", c.DailyInterval)
	fmt.Printf("Tiingo API: %s\n", boolLabel(c.TiingoAPIKey != "", "configured", "not set"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envDate requires YYYY-MM-DD; a present-but-invalid value is an error
// rather than a silent fallback, because the target date defines where
// backfill stops.
func envDate(key string, fallback time.Time) (time.Time, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected YYYY-MM-DD, got %q", key, v)
	}
	return d, nil
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
