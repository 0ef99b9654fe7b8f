package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/config"
	"github.com/quillread/peersync-go/internal/database"
	"github.com/quillread/peersync-go/internal/events"
	"github.com/quillread/peersync-go/internal/gateway"
	"github.com/quillread/peersync-go/internal/handler"
	"github.com/quillread/peersync-go/internal/jobs"
	"github.com/quillread/peersync-go/internal/middleware"
	"github.com/quillread/peersync-go/internal/redis"
	"github.com/quillread/peersync-go/internal/remote"
	"github.com/quillread/peersync-go/internal/repository"
	"github.com/quillread/peersync-go/internal/service"
)

const version = "1.0.0"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Msg("database ready")

	// Redis is optional. Without it the event broker stays in-process and the
	// pairing rate limiter falls back to the PIN TTL alone.
	var redisClient *redis.Client
	var rawRedis *goredis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		rawRedis = redisClient.Client
		log.Info().Msg("redis connected")
	}

	deviceRepo := repository.NewTrustedDeviceRepository(db.DB)
	libraryRepo := repository.NewLibraryRepository(db.DB)
	sessionRepo := repository.NewSyncSessionRepository(db.DB)

	broker := events.NewBroker(redisClient)
	defer broker.Close()

	trustService := service.NewTrustService(deviceRepo, cfg.TrustWindow())
	pairingService := service.NewPairingService(trustService, broker, cfg.PINTTL())
	snapshotService := service.NewSnapshotService(libraryRepo, cfg.DeviceID)

	var accountRemote service.RemoteRepository
	if cfg.AccountSyncConfigured() {
		accountRemote = remote.NewAccountClient(cfg.AccountAPIURL, cfg.AccountToken)
		log.Info().Str("url", cfg.AccountAPIURL).Msg("account sync enabled")
	}
	accountService := service.NewAccountSyncService(accountRemote, remote.NewCatalogClient(), libraryRepo)

	gw := gateway.NewHTTPGateway(cfg, snapshotService, trustService, broker)
	orchestrator := service.NewSyncOrchestrator(
		gw,
		service.NewConflictDetector(),
		service.NewConflictResolver(),
		broker,
	)

	sessionAuth := middleware.NewSessionAuthMiddleware(sessionRepo)
	pairingRateLimit := middleware.NewPairingRateLimitMiddleware(rawRedis)
	bodyLimit := middleware.NewBodyLimitMiddleware(0)

	peerHandler := handler.NewPeerHandler(
		cfg.DeviceID, cfg.DeviceName, version,
		trustService, pairingService, snapshotService, sessionRepo,
	)
	uiHandler := handler.NewUIHandler(pairingService, trustService, orchestrator, accountService)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimit.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"deviceId":  cfg.DeviceID,
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/peer/v1", func(r chi.Router) {
		r.Get("/device", peerHandler.Device)
		r.Post("/sessions", peerHandler.OpenSession)
		r.With(pairingRateLimit.Handler).Post("/pairing/complete", peerHandler.CompletePairing)

		r.Group(func(r chi.Router) {
			r.Use(sessionAuth.Handler)
			r.Delete("/sessions/{id}", peerHandler.CloseSession)
			r.Post("/sessions/{id}/manifest", peerHandler.ExchangeManifest)
			r.Post("/sessions/{id}/transfer", peerHandler.Transfer)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/pairing/pin", uiHandler.IssuePIN)
		r.Get("/devices", uiHandler.ListDevices)
		r.Post("/devices/{id}/reauth", uiHandler.ReauthDevice)
		r.Delete("/devices/{id}", uiHandler.RevokeDevice)
		r.Post("/sync", uiHandler.StartSync)
		r.Post("/sync/cancel", uiHandler.CancelSync)
		r.Get("/sync/status", uiHandler.SyncStatus)
		r.Get("/account", uiHandler.AccountStatus)
		r.Post("/account/merge", uiHandler.MergeAccount)
		r.Get("/events", eventsHandler.ServeHTTP)
	})

	if err := gw.StartDiscovery(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to start discovery")
	}
	defer gw.StopDiscovery(context.Background())

	cleanupJob := jobs.NewCleanupJob(sessionRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("deviceId", cfg.DeviceID).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
