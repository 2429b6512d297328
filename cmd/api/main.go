package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/application/services"
	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/infrastructure/cache"
	"github.com/bimakw/equity-ledger/internal/infrastructure/database"
	"github.com/bimakw/equity-ledger/internal/infrastructure/logging"
	"github.com/bimakw/equity-ledger/internal/presentation/handlers"
	"github.com/bimakw/equity-ledger/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting equity-ledger API",
		zap.Int("port", cfg.API.Port),
	)

	// Connect to database
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Connect to Redis cache (optional)
	var redisCache *cache.RedisCache
	redisCache, err = cache.NewRedisCache(cfg.Redis, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	// The mirror is only probed for health; reads always go to the primary
	var mirrorChecker handlers.HealthChecker
	if cfg.Mirror.Enabled {
		mirrorDB, err := database.NewSQLiteDB(cfg.Mirror, logger)
		if err != nil {
			logger.Warn("Failed to open mirror store, skipping its health check", zap.Error(err))
		} else {
			defer mirrorDB.Close()
			mirrorChecker = mirrorDB
		}
	}

	// Create repositories
	contractRepo := database.NewContractRepo(db)
	cursorRepo := database.NewCursorRepo(db)
	balanceRepo := database.NewBalanceRepo(db)
	transferRepo := database.NewTransferRepo(db)
	allowlistRepo := database.NewAllowlistRepo(db)
	actionRepo := database.NewCorporateActionRepo(db)

	// Create services
	contractService := services.NewContractService(contractRepo, nil, redisCache, logger)
	capTableService := services.NewCapTableService(
		contractRepo, balanceRepo, transferRepo, allowlistRepo, cursorRepo, redisCache, cfg.API, logger,
	)
	activityService := services.NewActivityService(contractRepo, transferRepo, allowlistRepo, actionRepo, cfg.API, logger)
	statusService := services.NewStatusService(contractRepo, cursorRepo, logger)
	holdingsService := services.NewHoldingsService(balanceRepo, redisCache, cfg.API.CacheTTL, logger)

	// Create handlers
	contractHandler := handlers.NewContractHandler(contractService, logger)
	ledgerHandler := handlers.NewLedgerHandler(capTableService, activityService, statusService, logger)
	holdingsHandler := handlers.NewHoldingsHandler(holdingsService, logger)

	var cacheChecker handlers.HealthChecker
	if redisCache != nil {
		cacheChecker = redisCache
	}
	healthHandler := handlers.NewHealthHandler(db, mirrorChecker, cacheChecker)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))
		contractHandler.RegisterRoutes(r)
		ledgerHandler.RegisterRoutes(r)
		holdingsHandler.RegisterRoutes(r)
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}
