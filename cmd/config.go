package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/voicecal/internal/calendar"
	"github.com/teemow/voicecal/internal/conversation"
	"github.com/teemow/voicecal/internal/google"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"

	storeMemory = "memory"
	storeRedis  = "redis"

	defaultEnvFile = ".env"
)

// Config holds the runtime configuration of voicecal. Values come from the
// environment, optionally preloaded from a .env file; flags override them.
type Config struct {
	Transport string `env:"MCP_TRANSPORT" envDefault:"stdio"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	Debug     bool   `env:"DEBUG" envDefault:"false"`

	// EncryptionKey protects the credential file at rest.
	EncryptionKey   string `env:"TOKEN_ENCRYPTION_KEY"`
	CredentialsFile string `env:"GOOGLE_TOKENS_FILE"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URI"`

	CalendarID        string        `env:"GOOGLE_CALENDAR_ID" envDefault:"primary"`
	TimeZone          string        `env:"CALENDAR_TIMEZONE" envDefault:"UTC"`
	CalendarTimeout   time.Duration `env:"CALENDAR_REQUEST_TIMEOUT" envDefault:"15s"`
	CalendarRateLimit float64       `env:"CALENDAR_RATE_LIMIT" envDefault:"5"`

	SessionStore       string        `env:"SESSION_STORE" envDefault:"memory"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	MaxSessions        int           `env:"MAX_SESSIONS" envDefault:"1000"`

	RedisURL       string `env:"REDIS_URL"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisTLS       bool   `env:"REDIS_TLS" envDefault:"false"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9090"`
}

// loadConfig reads the .env file at path, if any, and parses the
// environment into a Config. Variables already set in the environment win
// over the file. A missing default file is not an error.
func loadConfig(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || path != defaultEnvFile {
				return Config{}, fmt.Errorf("failed to load env file %s: %w", path, err)
			}
		}
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = google.DefaultCredentialsPath()
	}
	if cfg.RedisKeyPrefix == "" {
		cfg.RedisKeyPrefix = conversation.DefaultRedisKeyPrefix
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = calendar.DefaultCalendarID
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	switch c.Transport {
	case transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", c.Transport, transportStdio, transportStreamableHTTP)
	}
	switch c.SessionStore {
	case storeMemory:
	case storeRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when the session store is redis")
		}
	default:
		return fmt.Errorf("unsupported session store: %s (supported: %s, %s)", c.SessionStore, storeMemory, storeRedis)
	}
	if c.EncryptionKey == "" {
		return errors.New("TOKEN_ENCRYPTION_KEY is required")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive, got %s", c.SessionIdleTimeout)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max sessions must not be negative, got %d", c.MaxSessions)
	}
	return nil
}

// serveFlags are the values bound to the serve command's flags.
type serveFlags struct {
	envFile        string
	transport      string
	httpAddr       string
	debug          bool
	calendarID     string
	timeZone       string
	sessionStore   string
	redisURL       string
	metricsEnabled bool
	metricsAddr    string
}

// applyFlags copies flag values over cfg. A flag only overrides the
// environment when it was set explicitly on the command line.
func applyFlags(cmd *cobra.Command, f serveFlags, cfg *Config) {
	changed := cmd.Flags().Changed
	if changed("transport") {
		cfg.Transport = f.transport
	}
	if changed("http-addr") {
		cfg.HTTPAddr = f.httpAddr
	}
	if changed("debug") {
		cfg.Debug = f.debug
	}
	if changed("calendar-id") {
		cfg.CalendarID = f.calendarID
	}
	if changed("timezone") {
		cfg.TimeZone = f.timeZone
	}
	if changed("session-store") {
		cfg.SessionStore = f.sessionStore
	}
	if changed("redis-url") {
		cfg.RedisURL = f.redisURL
	}
	if changed("metrics") {
		cfg.MetricsEnabled = f.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}
