// Command notevault-server runs the notevault HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/internal/config"
	"github.com/MrEthical07/notevault/internal/logging"
	"github.com/MrEthical07/notevault/internal/mailer"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/internal/server"
	"github.com/MrEthical07/notevault/internal/store/memory"
	"github.com/MrEthical07/notevault/internal/store/postgres"
	otelexport "github.com/MrEthical07/notevault/metrics/export/otel"
	promexport "github.com/MrEthical07/notevault/metrics/export/prometheus"
	"github.com/MrEthical07/notevault/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "notevault-server",
		Short:         "Zero-knowledge notes API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")
	root.AddCommand(serveCmd(), migrateCmd(), configCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// backend is what both store implementations provide.
type backend interface {
	notevault.UserStore
	notes.Store
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return err
			}

			log, err := logging.New(settings.Env, settings.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings, log)
		},
	}
}

func serve(ctx context.Context, settings *config.Settings, log *zap.Logger) error {
	checks := map[string]server.HealthCheck{}

	var store backend
	switch settings.Store {
	case config.StoreMemory:
		log.Warn("using the in-memory store; all data is lost on exit")
		store = memory.New()
	default:
		pg, err := postgres.Open(ctx, settings.DatabaseURL, postgres.PoolConfig{MaxConns: settings.DBMaxConns})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		checks["postgres"] = pg.Ping
		store = pg
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     settings.RedisAddr,
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	var notifier notevault.Notifier
	if settings.ResendAPIKey != "" {
		notifier = mailer.NewResend(settings.ResendAPIKey, settings.MailFrom, log)
	} else {
		log.Info("no resend api key configured; notifications are logged")
		notifier = mailer.NewLog(log)
	}

	cfg := settings.EngineConfig()
	lint := cfg.Lint()
	for _, w := range lint {
		log.Warn("config lint", zap.String("code", w.Code), zap.Stringer("severity", w.Severity), zap.String("message", w.Message))
	}
	if cfg.Security.ProductionMode {
		if err := lint.AsError(notevault.LintHigh); err != nil {
			return err
		}
	}

	engine, err := notevault.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithNotifier(notifier).
		WithAuditSink(logging.NewAuditSink(log)).
		WithLogger(log).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()
	checks["redis"] = engine.Ping
	log.Info("security posture", zap.Any("report", engine.SecurityReport()))

	// Instruments land on the global provider; they are no-ops until the
	// embedding process installs one.
	otelMetrics, err := otelexport.NewExporter(otel.Meter("github.com/MrEthical07/notevault"), engine)
	if err != nil {
		return fmt.Errorf("register otel metrics: %w", err)
	}
	defer func() { _ = otelMetrics.Close() }()

	srv, err := server.New(server.Options{
		Engine: engine,
		Notes:  notes.NewService(store, nil),
		Logger: log,
		Policy: cfg.Password.Policy,
		Cookies: middleware.CookieOptions{
			Secure: settings.Production(),
			Domain: settings.CookieDomain,
		},
		AllowedOrigins: settings.AllowedOrigins,
		Metrics:        promexport.NewExporter(engine).Handler(),
		HealthChecks:   checks,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              settings.Addr,
		Handler:           srv,
		ReadTimeout:       settings.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      settings.WriteTimeout,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", settings.Addr), zap.String("env", settings.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|status",
		Short:     "Run database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "up", "down", "status":
			default:
				return fmt.Errorf("unknown migrate command %q", args[0])
			}

			settings, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if settings.DatabaseURL == "" {
				return errors.New("NOTEVAULT_DATABASE_URL is required")
			}

			pg, err := postgres.Open(cmd.Context(), settings.DatabaseURL, postgres.PoolConfig{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pg.Close()
			return pg.Migrate(cmd.Context(), args[0])
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if settings.ConfigFile != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "# config file:", settings.ConfigFile)
			}
			for _, line := range settings.DumpEnv() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}
