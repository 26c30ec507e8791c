package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", "secret")
	t.Setenv("GOOGLE_TOKENS_FILE", "/tmp/voicecal-tokens.json")

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.EncryptionKey)
	assert.Equal(t, "/tmp/voicecal-tokens.json", cfg.CredentialsFile)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 1000, cfg.MaxSessions)
	assert.Equal(t, "voicecal:session:", cfg.RedisKeyPrefix)
	assert.NotEmpty(t, cfg.CalendarID)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicecal.env")
	content := "TOKEN_ENCRYPTION_KEY=from-file\nVOICECAL_TEST_ONLY_IN_FILE=1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("TOKEN_ENCRYPTION_KEY", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("VOICECAL_TEST_ONLY_IN_FILE") })

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.EncryptionKey, "the environment wins over the file")
	assert.Equal(t, "1", os.Getenv("VOICECAL_TEST_ONLY_IN_FILE"))
}

func TestLoadConfig_MissingEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := loadConfig(defaultEnvFile)
	assert.NoError(t, err, "a missing default file is ignored")

	_, err = loadConfig(filepath.Join(dir, "missing.env"))
	assert.ErrorContains(t, err, "failed to load env file")
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")

	_, err := loadConfig("")
	assert.ErrorContains(t, err, "failed to parse environment")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Transport:          transportStdio,
			SessionStore:       storeMemory,
			EncryptionKey:      "secret",
			SessionIdleTimeout: 30 * time.Minute,
			MaxSessions:        1000,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "http transport", mutate: func(c *Config) { c.Transport = transportStreamableHTTP }},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "sse" }, wantErr: "unsupported transport type"},
		{name: "redis without url", mutate: func(c *Config) { c.SessionStore = storeRedis }, wantErr: "REDIS_URL is required"},
		{name: "redis with url", mutate: func(c *Config) {
			c.SessionStore = storeRedis
			c.RedisURL = "redis://localhost:6379/0"
		}},
		{name: "unknown store", mutate: func(c *Config) { c.SessionStore = "postgres" }, wantErr: "unsupported session store"},
		{name: "missing key", mutate: func(c *Config) { c.EncryptionKey = "" }, wantErr: "TOKEN_ENCRYPTION_KEY is required"},
		{name: "zero idle timeout", mutate: func(c *Config) { c.SessionIdleTimeout = 0 }, wantErr: "idle timeout must be positive"},
		{name: "negative max sessions", mutate: func(c *Config) { c.MaxSessions = -1 }, wantErr: "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplyFlags_OnlyExplicitFlagsOverride(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--transport", "streamable-http", "--debug"}))

	cfg := Config{
		Transport:    transportStdio,
		HTTPAddr:     ":7000",
		SessionStore: storeRedis,
		MetricsAddr:  ":7001",
	}
	applyFlags(cmd, serveFlagsFrom(t, cmd), &cfg)

	assert.Equal(t, transportStreamableHTTP, cfg.Transport)
	assert.True(t, cfg.Debug)
	assert.Equal(t, ":7000", cfg.HTTPAddr, "unset flag keeps the environment value")
	assert.Equal(t, storeRedis, cfg.SessionStore)
	assert.Equal(t, ":7001", cfg.MetricsAddr)
}

// serveFlagsFrom reads the parsed flag values back from cmd.
func serveFlagsFrom(t *testing.T, cmd *cobra.Command) serveFlags {
	t.Helper()
	get := func(name string) string {
		v, err := cmd.Flags().GetString(name)
		require.NoError(t, err)
		return v
	}
	debug, err := cmd.Flags().GetBool("debug")
	require.NoError(t, err)
	metrics, err := cmd.Flags().GetBool("metrics")
	require.NoError(t, err)

	return serveFlags{
		transport:      get("transport"),
		httpAddr:       get("http-addr"),
		debug:          debug,
		calendarID:     get("calendar-id"),
		timeZone:       get("timezone"),
		sessionStore:   get("session-store"),
		redisURL:       get("redis-url"),
		metricsEnabled: metrics,
		metricsAddr:    get("metrics-addr"),
	}
}
