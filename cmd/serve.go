package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/event-registration/config"
	"github.com/Dosada05/event-registration/db"
	"github.com/Dosada05/event-registration/handlers"
	"github.com/Dosada05/event-registration/live"
	"github.com/Dosada05/event-registration/middleware"
	"github.com/Dosada05/event-registration/repositories"
	api "github.com/Dosada05/event-registration/routes"
	"github.com/Dosada05/event-registration/services"
	"github.com/Dosada05/event-registration/storage"
	"github.com/Dosada05/event-registration/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", slog.Any("error", err))
		} else {
			logger.Info("store closed")
		}
	}()

	uploader, err := newUploader(ctx, cfg, logger)
	if err != nil {
		return err
	}

	provider, err := telemetry.NewProvider(cfg.TracingExporter)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.Any("error", err))
		return err
	}
	logger.Info("tracing initialized", slog.String("exporter", cfg.TracingExporter))

	wsHub := live.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go wsHub.Run(hubCtx)
	logger.Info("WebSocket Hub started")

	codec := services.NewJWTTicketCodec(cfg.TicketSigningKey)
	catalog := services.NewCachedCatalog(store, cfg.CatalogCacheTTL)
	issuer := services.NewTicketIssuer(store, codec, services.NewStoragePassPublisher(uploader), logger)
	ledger := services.NewRegistrationLedger(store, issuer, logger)
	registry := services.NewTeamRegistry(store, issuer, logger)

	notifiers := services.MultiNotifier{services.NewFeedNotifier(wsHub)}
	if cfg.MailEnabled() {
		notifiers = append(notifiers, services.NewMailNotifier(services.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		}, store, logger))
		logger.Info("confirmation mail enabled", slog.String("smtp_host", cfg.SMTPHost))
	}

	coordinator := services.NewCoordinator(services.CoordinatorDeps{
		Store:    store,
		Catalog:  catalog,
		Ledger:   ledger,
		Teams:    registry,
		Issuer:   issuer,
		Decoder:  codec,
		Notifier: notifiers,
		Feed:     wsHub,
		Tracer:   provider.Tracer(),
		Logger:   logger,
	})
	eventService := services.NewEventService(store, catalog, wsHub, logger)
	logger.Info("Services initialized")

	go runScheduler(ctx, eventService, cfg.SchedulerInterval, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:          middleware.NewAuthenticator(cfg.JWTSecretKey, logger),
		Events:        handlers.NewEventHandler(eventService),
		Registrations: handlers.NewRegistrationHandler(coordinator),
		Teams:         handlers.NewTeamHandler(coordinator),
		WebSocket:     handlers.NewWebSocketHandler(wsHub, eventService, cfg.CORSAllowedOrigins, logger),
	}, cfg.CORSAllowedOrigins)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			return err
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return err
		}
		logger.Info("server shutdown complete")

		stopHub()
		coordinator.Wait()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", slog.Any("error", err))
		}
	}
	logger.Info("application exited")
	return nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (repositories.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return repositories.NewMemoryStore(), nil
	}

	conn, err := openDB(cfg)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		return nil, err
	}
	logger.Info("database connection established")

	if cfg.MigrateOnStart {
		if err := db.MigrateUp(conn); err != nil {
			conn.Close()
			logger.Error("failed to apply migrations", slog.Any("error", err))
			return nil, err
		}
		logger.Info("migrations applied")
	}
	return repositories.NewPostgresStore(conn), nil
}

func newUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.FileUploader, error) {
	if !cfg.PassStorageEnabled() {
		logger.Warn("object storage not configured, ticket passes kept in memory")
		return storage.NewMemoryUploader(""), nil
	}
	uploader, err := storage.NewS3Uploader(ctx, storage.S3UploaderConfig{
		AccountID:       cfg.R2AccountID,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize object storage uploader", slog.Any("error", err))
		return nil, err
	}
	logger.Info("object storage uploader initialized", slog.String("bucket", cfg.R2BucketName))
	return uploader, nil
}

// runScheduler advances event statuses by their dates: once at startup, then
// on every tick until ctx is done.
func runScheduler(ctx context.Context, events *services.EventService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("event status scheduler started", slog.Duration("interval", interval))

	if err := events.AutoUpdateEventStatusesByDates(ctx); err != nil {
		logger.Error("scheduler: initial run failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ticker.C:
			if err := events.AutoUpdateEventStatusesByDates(ctx); err != nil {
				logger.Error("scheduler: periodic run failed", slog.Any("error", err))
			}
		case <-ctx.Done():
			logger.Info("event status scheduler stopped")
			return
		}
	}
}
