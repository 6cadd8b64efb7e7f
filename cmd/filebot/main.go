package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/italolelis/filebot/internal/aria2"
	"github.com/italolelis/filebot/internal/bot"
	"github.com/italolelis/filebot/internal/cleanup"
	"github.com/italolelis/filebot/internal/config"
	"github.com/italolelis/filebot/internal/downloader"
	"github.com/italolelis/filebot/internal/files"
	"github.com/italolelis/filebot/internal/http/rest"
	"github.com/italolelis/filebot/internal/logctx"
	"github.com/italolelis/filebot/internal/notifier"
	"github.com/italolelis/filebot/internal/storage/sqlite"
	"github.com/italolelis/filebot/internal/telemetry"
	"github.com/italolelis/filebot/internal/transfer"
)

const serviceName = "filebot"

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logctx.NewTraceHandler(jsonHandler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("filebot starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEnabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	history := sqlite.NewInstrumentedDownloadRepository(database, tel)

	// =========================================================================
	// Start Upload Directory
	store := files.NewStore(cfg.UploadDir)
	if err := store.Ensure(); err != nil {
		return err
	}

	// =========================================================================
	// Start Download Engine
	engine := transfer.NewInstrumentedEngine(
		aria2.NewClient(cfg.Aria2RPCURL, cfg.Aria2RPCSecret, cfg.Aria2Timeout),
		tel,
		"aria2",
	)

	if v, err := engine.Version(ctx); err != nil {
		logger.Warn("aria2 is not reachable yet", "url", cfg.Aria2RPCURL, "err", err)
	} else {
		logger.Info("connected to aria2", "url", cfg.Aria2RPCURL, "aria2_version", v)
	}

	throttle, err := downloader.NewThrottleFactory(cfg.LifecycleThrottle, cfg.LifecycleThrottleInterval)
	if err != nil {
		return err
	}

	monitor := downloader.NewMonitor(engine, tel, downloader.MonitorConfig{
		DownloadDir:  cfg.UploadDir,
		PollInterval: cfg.PollInterval,
		RetryBackoff: cfg.RetryBackoff,
		Throttle:     throttle,
	})

	sessions := downloader.NewSessions()

	// =========================================================================
	// Start Bot
	messenger, err := bot.NewTelegramMessenger(cfg.TelegramBotToken)
	if err != nil {
		return err
	}

	logger.Info("authorized on telegram", "account", messenger.UserName())

	b := bot.New(messenger, bot.Deps{
		Store:     store,
		Monitor:   monitor,
		Tracker:   transfer.NewTracker(engine),
		Sessions:  sessions,
		History:   history,
		Mirror:    setupNotification(cfg),
		Telemetry: tel,
	}, bot.Config{
		AdminIDs:               cfg.AdminIDs,
		UploadProgressInterval: cfg.UploadProgressInterval,
	})

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, engine, sessions, tel, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.Run(gctx, messenger.Updates(gctx)); err != nil {
			return err
		}

		if gctx.Err() == nil {
			return errors.New("telegram update loop stopped")
		}

		return nil
	})

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	if cfg.KeepDownloadedFor > 0 {
		cleaner := cleanup.NewCleaner(history, store, cfg.KeepDownloadedFor)

		g.Go(func() error {
			return cleaner.Run(gctx, cfg.CleanupInterval)
		})
	}

	logger.Info("waiting for commands...",
		"upload_dir", cfg.UploadDir,
		"aria2_url", cfg.Aria2RPCURL,
		"poll_interval", cfg.PollInterval.String(),
		"lifecycle_throttle", cfg.LifecycleThrottle,
		"retention", cfg.KeepDownloadedFor.String(),
	)

	err = g.Wait()

	logger.Info("waiting for download watchers to stop", "count", sessions.Len())
	sessions.Wait()

	return err
}

// setupNotification returns the notifier that mirrors finished downloads, or
// nil when none is configured.
func setupNotification(cfg *config.Config) notifier.Notifier {
	return notifier.NewDiscordNotifiers(cfg.DiscordWebhookURLs)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, engine transfer.Engine, sessions *downloader.Sessions, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      rest.NewOpsHandler(engine, sessions, tel).Routes(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
