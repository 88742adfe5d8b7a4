package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"carpool/internal/app"
	"carpool/internal/auth"
	"carpool/internal/config"
	"carpool/internal/handler"
	"carpool/internal/logger"
	internalRedis "carpool/internal/redis"
	"carpool/internal/repository"
	"carpool/internal/service"
)

func main() {
	cfg := config.Load()

	if err := logger.Initialize(cfg.Log.Level); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic comes first so the database and Redis clients are instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Log.Warnw("failed to initialize New Relic", "error", err)
		} else {
			logger.Log.Infow("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	store, db, err := app.NewStore(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Log.Fatalw("failed to initialize store", "driver", cfg.Database.Driver, "error", err)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Log.Fatalw("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Log.Infow("connected to Redis", "addr", cfg.Redis.Addr)
	} else {
		logger.Log.Infow("redis disabled; wallet cache and idempotent replay are off")
	}

	server, err := wireServer(store, redisClient, nrApp, cfg)
	if err != nil {
		logger.Log.Fatalw("failed to wire server", "error", err)
	}

	go func() {
		logger.Log.Infow("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalw("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Infow("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("server forced to shutdown", "error", err)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Log.Infow("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(store repository.Store, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, error) {
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	var walletCache service.WalletCache
	if redisClient != nil {
		walletCache = internalRedis.NewWalletCache(redisClient)
	}

	notificationService := service.NewNotificationService()
	ledgerService := service.NewLedgerService()
	bookingService := service.NewBookingService(store, ledgerService, cfg.Ledger, notificationService, walletCache)
	rideService := service.NewRideService(store, ledgerService, bookingService, cfg.Ledger, notificationService, walletCache)
	walletService := service.NewWalletService(store, ledgerService, walletCache)

	router := app.NewRouter(app.RouterDeps{
		UserHandler:    handler.NewUserHandler(walletService, cfg.Auth.JWTSecret),
		WalletHandler:  handler.NewWalletHandler(walletService),
		RideHandler:    handler.NewRideHandler(rideService),
		BookingHandler: handler.NewBookingHandler(bookingService),
		AdminHandler:   handler.NewAdminHandler(walletService),
		Verifier:       verifier,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, nil
}
