package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/voicecal/internal/calendar"
	"github.com/teemow/voicecal/internal/conversation"
	"github.com/teemow/voicecal/internal/credentials"
	"github.com/teemow/voicecal/internal/google"
	"github.com/teemow/voicecal/internal/instrumentation"
	"github.com/teemow/voicecal/internal/logging"
	"github.com/teemow/voicecal/internal/server"
	"github.com/teemow/voicecal/internal/tools/calendar_tools"
)

const (
	metricsStartupTimeout = 5 * time.Second
	redisPingTimeout      = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server that gives a voice agent
access to the user's Google Calendar.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on /mcp

Configuration is read from the environment, optionally preloaded from a
.env file. Flags override the environment when set explicitly.

Credentials:
  TOKEN_ENCRYPTION_KEY      Key protecting the credential file (required)
  GOOGLE_TOKENS_FILE        Encrypted credential file
  GOOGLE_CLIENT_ID          OAuth client used to refresh the access token
  GOOGLE_CLIENT_SECRET
  GOOGLE_REDIRECT_URI

Session context:
  SESSION_STORE             memory (default) or redis
  SESSION_IDLE_TIMEOUT      Idle time after which a call's context is dropped
  REDIS_URL                 Redis server for the redis store

Without a usable credential file the server still starts; every tool then
answers that the calendar is not connected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.envFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, flags, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.envFile, "env-file", defaultEnvFile, "Environment file loaded before parsing the environment")
	cmd.Flags().StringVar(&flags.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&flags.calendarID, "calendar-id", calendar.DefaultCalendarID, "Calendar to operate on")
	cmd.Flags().StringVar(&flags.timeZone, "timezone", "UTC", "IANA time zone for new events and spoken times")
	cmd.Flags().StringVar(&flags.sessionStore, "session-store", storeMemory, "Session context store: memory or redis")
	cmd.Flags().StringVar(&flags.redisURL, "redis-url", "", "Redis URL for the redis session store (e.g. redis://localhost:6379/0)")
	cmd.Flags().BoolVar(&flags.metricsEnabled, "metrics", true, "Serve Prometheus metrics on a dedicated port (streamable-http only)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", ":9090", "Metrics server address")

	return cmd
}

func runServe(ctx context.Context, cfg Config) error {
	logger := logging.New(os.Stderr, cfg.Debug)
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	if cfg.Transport != transportStdio && cfg.MetricsEnabled && provider.Enabled() && provider.ServesPrometheus() {
		metricsServer, err := startMetricsServer(cfg.MetricsAddr, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	store, err := newConversationStore(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}

	manager, err := newCredentialManager(cfg, metrics, logger)
	if err != nil {
		return err
	}
	connected, err := manager.Initialize(ctx)
	switch {
	case errors.Is(err, credentials.ErrDecrypt):
		logger.Error("Failed to decrypt tokens. This may happen if the encryption key has changed.", logging.Err(err))
	case err != nil:
		logger.Error("Failed to load calendar credentials", logging.Err(err))
	case !connected:
		logger.Warn("Calendar is not connected; tools will report it until credentials are sealed",
			slog.String("credentials_file", cfg.CredentialsFile))
	default:
		logger.Info("Calendar credentials loaded", slog.Time("expiry", manager.Status().Expiry))
	}

	calClient, err := calendar.NewClient(ctx, manager, calendar.Config{
		CalendarID: cfg.CalendarID,
		TimeZone:   cfg.TimeZone,
		RateLimit:  cfg.CalendarRateLimit,
		Timeout:    cfg.CalendarTimeout,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create calendar client: %w", err)
	}
	logger.Info("Calendar gateway ready",
		logging.Calendar(calClient.CalendarID()),
		slog.String("timezone", calClient.Location().String()))

	opts := []server.Option{
		server.WithCalendarClient(calClient),
		server.WithStore(store),
		server.WithMetrics(metrics),
		server.WithLogger(logger),
	}
	if instrConfig.AuditLogging.Enabled {
		opts = append(opts, server.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)))
	}
	serverContext, err := server.NewServerContext(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("voicecal", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register calendar tools: %w", err)
	}

	switch cfg.Transport {
	case transportStdio:
		return runStdioServer(ctx, mcpSrv, logger)
	case transportStreamableHTTP:
		return runStreamableHTTPServer(ctx, mcpSrv, serverContext, manager, cfg, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", cfg.Transport)
	}
}

func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("Metrics server started", slog.String("addr", metricsServer.BoundAddr()))
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(metricsStartupTimeout):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

// newConversationStore builds the session context store selected by
// cfg.SessionStore.
func newConversationStore(ctx context.Context, cfg Config, metrics *instrumentation.Metrics, logger *slog.Logger) (conversation.Store, error) {
	switch cfg.SessionStore {
	case storeRedis:
		client, err := conversation.NewRedisClient(conversation.RedisConfig{
			URL:       cfg.RedisURL,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			TLS:       cfg.RedisTLS,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		store := conversation.NewRedisStore(client,
			conversation.WithKeyPrefix(cfg.RedisKeyPrefix),
			conversation.WithTTL(cfg.SessionIdleTimeout),
		)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		logger.Info("Using redis session store", slog.String("key_prefix", cfg.RedisKeyPrefix))
		return store, nil
	default:
		return conversation.NewMemoryStore(
			conversation.WithIdleTimeout(cfg.SessionIdleTimeout),
			conversation.WithMaxSessions(cfg.MaxSessions),
			conversation.WithObserver(metrics),
			conversation.WithLogger(logger),
		), nil
	}
}

func newCredentialManager(cfg Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*credentials.Manager, error) {
	sealer, err := credentials.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	store := credentials.NewFileStore(cfg.CredentialsFile, sealer)
	oauthConfig := google.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	return credentials.NewManager(store, oauthConfig,
		credentials.WithLogger(logging.NewSlogAdapter(logger)),
		credentials.WithRefreshRecorder(metrics),
	), nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv,
			mcpserver.WithErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
		); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, manager *credentials.Manager, cfg Config, logger *slog.Logger) error {
	sessions := server.NewSessionIDManager(sc.Store(), cfg.SessionIdleTimeout, logger)
	defer sessions.Stop()

	health := server.NewHealthChecker(sc)
	health.SetCalendarStatus(manager)
	health.SetSessionManager(sessions)

	httpServer, err := server.NewHTTPServer(mcpSrv, server.HTTPServerConfig{
		Addr:     cfg.HTTPAddr,
		Sessions: sessions,
		Health:   health,
		Metrics:  sc.Metrics(),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	logger.Info("Starting voicecal MCP server",
		slog.String("transport", cfg.Transport),
		slog.String("addr", cfg.HTTPAddr),
		slog.String("endpoint", server.MCPEndpointPath))

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}
