package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	Firebase        FirebaseConfig        `yaml:"firebase"`
	Push            PushConfig            `yaml:"push"`
	Processor       ProcessorConfig       `yaml:"processor"`
	CredentialCache CredentialCacheConfig `yaml:"credential_cache"`
	Log             LogConfig             `yaml:"log"`

	// Warnings collects non-fatal problems found while loading, to be logged
	// once a logger exists.
	Warnings []string `yaml:"-"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	InternalAPIKey  string  `yaml:"internal_api_key"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// FirebaseConfig points at the service account and the gateway endpoints.
type FirebaseConfig struct {
	// ServiceAccountJSON takes precedence over ServiceAccountFile.
	ServiceAccountJSON    string        `yaml:"service_account_json"`
	ServiceAccountFile    string        `yaml:"service_account_file"`
	TokenURI              string        `yaml:"token_uri"`
	Scope                 string        `yaml:"scope"`
	SendEndpoint          string        `yaml:"send_endpoint"`
	RequestTimeoutSeconds int           `yaml:"request_timeout_seconds"`
	RequestTimeout        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys and the fixed platform payload hints.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`

	ClickAction      string `yaml:"click_action"`
	AndroidChannelID string `yaml:"android_channel_id"`
	AndroidIcon      string `yaml:"android_icon"`
	AndroidColor     string `yaml:"android_color"`
	IOSBadge         int    `yaml:"ios_badge"`
	WebIcon          string `yaml:"web_icon"`
	WebBadge         string `yaml:"web_badge"`
	WebLink          string `yaml:"web_link"`
}

// ProcessorConfig controls the queue processing passes.
type ProcessorConfig struct {
	Enabled           bool          `yaml:"enabled"`
	IntervalSeconds   int           `yaml:"interval_seconds"`
	Interval          time.Duration `yaml:"-"`
	BatchSize         int           `yaml:"batch_size"`
	ClaimLeaseSeconds int           `yaml:"claim_lease_seconds"`
	ClaimLease        time.Duration `yaml:"-"`
	Concurrency       int           `yaml:"concurrency"`
	SendRatePerSec    float64       `yaml:"send_rate_per_sec"`
}

// CredentialCacheConfig selects where minted access tokens are cached.
type CredentialCacheConfig struct {
	Driver      string        `yaml:"driver"` // none | memory | redis
	RedisURL    string        `yaml:"redis_url"`
	SkewSeconds int           `yaml:"skew_seconds"`
	Skew        time.Duration `yaml:"-"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads the configuration from the given path, then applies environment
// overrides (a .env file in the working directory is honoured when present).
func Load(path string) (*Config, error) {
	var envErr error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		envErr = err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if envErr != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring unreadable .env file: %v", envErr))
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := os.LookupEnv("FIREBASE_SERVICE_ACCOUNT"); ok {
		cfg.Firebase.ServiceAccountJSON = v
	}
	if v, ok := os.LookupEnv("INTERNAL_API_KEY"); ok {
		cfg.Server.InternalAPIKey = v
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		cfg.CredentialCache.RedisURL = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Firebase.TokenURI == "" {
		cfg.Firebase.TokenURI = "https://oauth2.googleapis.com/token"
	}
	if cfg.Firebase.Scope == "" {
		cfg.Firebase.Scope = "https://www.googleapis.com/auth/firebase.messaging"
	}
	if cfg.Firebase.SendEndpoint == "" {
		cfg.Firebase.SendEndpoint = "https://fcm.googleapis.com"
	}
	if cfg.Firebase.RequestTimeoutSeconds <= 0 {
		cfg.Firebase.RequestTimeoutSeconds = 10
	}
	cfg.Firebase.RequestTimeout = time.Duration(cfg.Firebase.RequestTimeoutSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.ClickAction == "" {
		cfg.Push.ClickAction = "OPEN_NOTIFICATION"
	}
	if cfg.Push.AndroidChannelID == "" {
		cfg.Push.AndroidChannelID = "dream_notifications"
	}
	if cfg.Push.AndroidIcon == "" {
		cfg.Push.AndroidIcon = "ic_stat_notification"
	}
	if cfg.Push.AndroidColor == "" {
		cfg.Push.AndroidColor = "#7C3AED"
	}
	if cfg.Push.IOSBadge <= 0 {
		cfg.Push.IOSBadge = 1
	}
	if cfg.Push.WebIcon == "" {
		cfg.Push.WebIcon = "/icons/icon-192x192.png"
	}
	if cfg.Push.WebBadge == "" {
		cfg.Push.WebBadge = "/icons/badge-72x72.png"
	}
	if cfg.Push.WebLink == "" {
		cfg.Push.WebLink = "/notifications"
	}

	if cfg.Processor.IntervalSeconds <= 0 {
		cfg.Processor.IntervalSeconds = 30
	}
	cfg.Processor.Interval = time.Duration(cfg.Processor.IntervalSeconds) * time.Second
	if cfg.Processor.BatchSize <= 0 {
		cfg.Processor.BatchSize = 100
	}
	if cfg.Processor.ClaimLeaseSeconds <= 0 {
		cfg.Processor.ClaimLeaseSeconds = 300
	}
	cfg.Processor.ClaimLease = time.Duration(cfg.Processor.ClaimLeaseSeconds) * time.Second
	if cfg.Processor.Concurrency <= 0 {
		cfg.Warnings = append(cfg.Warnings, "processor.concurrency is not set or invalid; defaulting to 1")
		cfg.Processor.Concurrency = 1
	}

	cfg.CredentialCache.Driver = strings.ToLower(strings.TrimSpace(cfg.CredentialCache.Driver))
	if cfg.CredentialCache.Driver == "" {
		cfg.CredentialCache.Driver = "none"
	}
	if cfg.CredentialCache.SkewSeconds <= 0 {
		cfg.CredentialCache.SkewSeconds = 60
	}
	cfg.CredentialCache.Skew = time.Duration(cfg.CredentialCache.SkewSeconds) * time.Second

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
