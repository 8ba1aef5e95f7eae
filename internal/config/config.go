// Package config holds the typed, validated configuration record for the
// whole process (§6 of the specification).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DetectorWeights are the per-detector fusion weights (§4.5). They are
// normalised to sum to 1 by Validate.
type DetectorWeights struct {
	Keyword     float64 `json:"keyword"`
	Dom         float64 `json:"dom"`
	APIProbe    float64 `json:"api_probe"`
	Fingerprint float64 `json:"fingerprint"`
}

// Config is the single typed configuration record for StockWatch.
type Config struct {
	DatabaseURL string `json:"database_url"`

	CheckInterval       time.Duration `json:"check_interval"`
	AggregationInterval time.Duration `json:"aggregation_interval"`
	CooldownSeconds     time.Duration `json:"cooldown_seconds"`
	FetchTimeout        time.Duration `json:"fetch_timeout"`
	DetectorTimeout     time.Duration `json:"detector_timeout"`
	DeliveryTimeout     time.Duration `json:"delivery_timeout"`
	ShutdownGrace       time.Duration `json:"shutdown_grace"`
	TickInterval        time.Duration `json:"tick_interval"`

	RetryDelay time.Duration `json:"retry_delay"`
	MaxRetries int           `json:"max_retries"`

	MaxWorkers      int           `json:"max_workers"`
	PerHostMinDelay time.Duration `json:"per_host_min_delay"`
	BlockedBackoff  time.Duration `json:"blocked_backoff"`
	ErrorThreshold  int           `json:"error_threshold"`

	ConfidenceThreshold float64         `json:"confidence_threshold"`
	DetectorWeights     DetectorWeights `json:"detector_weights"`

	EnableRender bool `json:"enable_render"`
	MaxBrowsers  int  `json:"max_browsers"`

	DailyAddLimit int      `json:"daily_add_limit"`
	AdminIDs      []string `json:"admin_ids"`

	// VendorTags maps a host suffix (e.g. "vultr.com") to a short vendor tag.
	VendorTags map[string]string `json:"vendor_tags"`

	// HTTPAddr is the inbound API listen address (internal/api).
	HTTPAddr string `json:"http_addr"`

	// JWTSigningKey authenticates the admin-only HTTP routes.
	JWTSigningKey string `json:"-"`

	// SendGridAPIKey / FromEmail configure the email Sink, if set.
	SendGridAPIKey string `json:"-"`
	FromEmail      string `json:"from_email"`
	FromName       string `json:"from_name"`

	// RedisURL, if set, backs the pubsub transport with Redis instead of
	// the in-memory transport (single-instance default).
	RedisURL string `json:"-"`
}

// Default returns a Config populated with the defaults named throughout
// spec.md §6/§4.
func Default() Config {
	return Config{
		DatabaseURL:         "sqlite://./data/stockwatch.db",
		CheckInterval:       180 * time.Second,
		AggregationInterval: 180 * time.Second,
		CooldownSeconds:     600 * time.Second,
		FetchTimeout:        30 * time.Second,
		DetectorTimeout:     10 * time.Second,
		DeliveryTimeout:     15 * time.Second,
		ShutdownGrace:       60 * time.Second,
		TickInterval:        1 * time.Second,
		RetryDelay:          60 * time.Second,
		MaxRetries:          3,
		MaxWorkers:          8,
		PerHostMinDelay:     2 * time.Second,
		BlockedBackoff:      30 * time.Minute,
		ErrorThreshold:      10,
		ConfidenceThreshold: 0.6,
		DetectorWeights: DetectorWeights{
			Keyword:     0.20,
			Dom:         0.35,
			APIProbe:    0.35,
			Fingerprint: 0.10,
		},
		EnableRender:  false,
		MaxBrowsers:   2,
		DailyAddLimit: 50,
		AdminIDs:      nil,
		VendorTags:    map[string]string{},
		HTTPAddr:      "0.0.0.0:8080",
	}
}

// Load builds a Config from defaults, an optional .env file (loaded via
// godotenv, ignored if absent) and then environment variables, matching the
// teacher's preference for env-driven deployment configuration.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load env file: %w", err)
		}
	}

	cfg := Default()

	if v := os.Getenv("STOCKWATCH_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v, ok := durationEnv("STOCKWATCH_CHECK_INTERVAL"); ok {
		cfg.CheckInterval = v
	}
	if v, ok := durationEnv("STOCKWATCH_AGGREGATION_INTERVAL"); ok {
		cfg.AggregationInterval = v
	}
	if v, ok := durationEnv("STOCKWATCH_COOLDOWN_SECONDS"); ok {
		cfg.CooldownSeconds = v
	}
	if v, ok := durationEnv("STOCKWATCH_FETCH_TIMEOUT"); ok {
		cfg.FetchTimeout = v
	}
	if v, ok := intEnv("STOCKWATCH_MAX_WORKERS"); ok {
		cfg.MaxWorkers = v
	}
	if v, ok := durationEnv("STOCKWATCH_PER_HOST_MIN_DELAY"); ok {
		cfg.PerHostMinDelay = v
	}
	if v, ok := floatEnv("STOCKWATCH_CONFIDENCE_THRESHOLD"); ok {
		cfg.ConfidenceThreshold = v
	}
	if v, ok := boolEnv("STOCKWATCH_ENABLE_RENDER"); ok {
		cfg.EnableRender = v
	}
	if v, ok := intEnv("STOCKWATCH_MAX_BROWSERS"); ok {
		cfg.MaxBrowsers = v
	}
	if v, ok := intEnv("STOCKWATCH_DAILY_ADD_LIMIT"); ok {
		cfg.DailyAddLimit = v
	}
	if v := os.Getenv("STOCKWATCH_ADMIN_IDS"); v != "" {
		cfg.AdminIDs = strings.Split(v, ",")
	}
	if v := os.Getenv("STOCKWATCH_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.JWTSigningKey = os.Getenv("STOCKWATCH_JWT_SIGNING_KEY")
	cfg.SendGridAPIKey = os.Getenv("STOCKWATCH_SENDGRID_API_KEY")
	if v := os.Getenv("STOCKWATCH_FROM_EMAIL"); v != "" {
		cfg.FromEmail = v
	}
	if v := os.Getenv("STOCKWATCH_FROM_NAME"); v != "" {
		cfg.FromName = v
	}
	cfg.RedisURL = os.Getenv("STOCKWATCH_REDIS_URL")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency, normalising
// detector weights to sum to 1 as a side effect (§4.5).
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: database_url is required")
	}
	if !strings.HasPrefix(c.DatabaseURL, "sqlite://") && !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("config: database_url must use sqlite:// or postgres(ql)://, got %q", c.DatabaseURL)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("config: max_workers must be positive")
	}
	if c.MaxBrowsers <= 0 {
		return fmt.Errorf("config: max_browsers must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries cannot be negative")
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: confidence_threshold must be in (0,1]")
	}
	if c.DailyAddLimit < 0 {
		return fmt.Errorf("config: daily_add_limit cannot be negative")
	}
	if c.PerHostMinDelay < 0 {
		return fmt.Errorf("config: per_host_min_delay cannot be negative")
	}

	sum := c.DetectorWeights.Keyword + c.DetectorWeights.Dom + c.DetectorWeights.APIProbe + c.DetectorWeights.Fingerprint
	if sum <= 0 {
		return fmt.Errorf("config: detector_weights must sum to a positive value")
	}
	c.DetectorWeights.Keyword /= sum
	c.DetectorWeights.Dom /= sum
	c.DetectorWeights.APIProbe /= sum
	c.DetectorWeights.Fingerprint /= sum

	return nil
}

// IsAdmin reports whether userID is in the configured admin set.
func (c Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DumpJSON renders the (validated) configuration as indented JSON for the
// `config dump` CLI subcommand. Secrets are omitted via json:"-" tags.
func (c Config) DumpJSON() (string, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("config: marshal: %w", err)
	}
	return string(b), nil
}

func durationEnv(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func floatEnv(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func boolEnv(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
