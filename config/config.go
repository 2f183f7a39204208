package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, read from the environment.
type Config struct {
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	GatewayToken   string   `env:"GATEWAY_SERVICE_TOKEN,required,notEmpty"`
	Port           int      `env:"PORT" envDefault:"8000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	EventTimezone  string   `env:"EVENT_TIMEZONE" envDefault:"Europe/Paris"`
	AdminRole      string   `env:"ADMIN_ROLE" envDefault:"admin"`
	SeedOnStartup  bool     `env:"SEED_ON_STARTUP" envDefault:"true"`

	BalanceFloorEnabled bool  `env:"BALANCE_FLOOR_ENABLED" envDefault:"false"`
	BalanceFloor        int64 `env:"BALANCE_FLOOR" envDefault:"0"`

	FreePacksEnabled     bool   `env:"FREE_PACKS_ENABLED" envDefault:"true"`
	FreePacksMorningCron string `env:"FREE_PACKS_MORNING_CRON" envDefault:"0 9 * * *"`
	FreePacksEveningCron string `env:"FREE_PACKS_EVENING_CRON" envDefault:"0 18 * * *"`

	LedgerAuditInterval time.Duration `env:"LEDGER_AUDIT_INTERVAL" envDefault:"10m"`
	HubBuffer           int           `env:"HUB_BUFFER" envDefault:"1"`
	SSEKeepAlive        time.Duration `env:"SSE_KEEPALIVE" envDefault:"15s"`

	AuthServiceURL   string `env:"AUTH_SERVICE_URL"`
	AuthServiceToken string `env:"AUTH_SERVICE_TOKEN"`

	RosterSyncURL      string        `env:"ROSTER_SYNC_URL"`
	RosterSyncPath     string        `env:"ROSTER_SYNC_PATH" envDefault:"/api/v1/roster"`
	RosterSyncToken    string        `env:"ROSTER_SYNC_TOKEN"`
	RosterSyncInterval time.Duration `env:"ROSTER_SYNC_INTERVAL" envDefault:"1m"`

	R2          R2Config `envPrefix:"R2_"`
	ArchiveCron string   `env:"ARCHIVE_CRON" envDefault:"55 23 * * *"`

	DayRolloverCron string `env:"DAY_ROLLOVER_CRON" envDefault:"0 0 * * *"`

	location *time.Location
}

// Location is the event timezone, resolved by ParseEnv.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// R2Config holds the Cloudflare R2 credentials for the standings archive.
type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME"`
}

// Enabled reports whether enough is configured to upload archives.
func (r R2Config) Enabled() bool {
	return r.Bucket != "" && r.AccountID != ""
}

// ParseEnv parses the environment into cfg without touching .env files.
func ParseEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	loc, err := time.LoadLocation(cfg.EventTimezone)
	if err != nil {
		return fmt.Errorf("load EVENT_TIMEZONE %q: %w", cfg.EventTimezone, err)
	}
	cfg.location = loc
	if cfg.HubBuffer < 1 {
		return fmt.Errorf("HUB_BUFFER must be at least 1, got %d", cfg.HubBuffer)
	}
	return nil
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
