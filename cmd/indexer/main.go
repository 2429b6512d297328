package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/application/services"
	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/infrastructure/alerting"
	"github.com/bimakw/equity-ledger/internal/infrastructure/database"
	"github.com/bimakw/equity-ledger/internal/infrastructure/ethereum"
	"github.com/bimakw/equity-ledger/internal/infrastructure/logging"
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

	logger.Info("Starting equity-ledger indexer",
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
		zap.Int("confirmations", cfg.Indexer.BlockConfirmations),
		zap.Bool("mirror", cfg.Mirror.Enabled),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the primary ledger store
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		n, err := db.Migrate()
		if err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations applied", zap.Int("count", n))
	}

	// Connect to Ethereum node
	ethClient, err := ethereum.NewClient(cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	decoder, err := ethereum.NewDecoder()
	if err != nil {
		logger.Fatal("Failed to build event decoder", zap.Error(err))
	}
	source := ethereum.NewEventSource(ethClient, decoder, cfg.Indexer, logger)

	reporter, err := alerting.NewReporter(cfg.Sentry, logger)
	if err != nil {
		logger.Fatal("Failed to init error reporting", zap.Error(err))
	}
	defer reporter.Flush(5 * time.Second)

	// Create repositories
	contractRepo := database.NewContractRepo(db)
	cursorRepo := database.NewCursorRepo(db)

	var writer services.LedgerWriter = services.NewLedgerUpdater(database.NewLedgerStore(db), cursorRepo, logger)

	// Mirror every primary write into SQLite while the mirror is enabled
	var sink *services.DualSink
	if cfg.Mirror.Enabled {
		mirrorDB, err := database.NewSQLiteDB(cfg.Mirror, logger)
		if err != nil {
			logger.Fatal("Failed to open mirror store", zap.Error(err))
		}
		defer mirrorDB.Close()

		if _, err := mirrorDB.Migrate(); err != nil {
			logger.Fatal("Failed to migrate mirror store", zap.Error(err))
		}

		mirror := services.NewMirrorUpdater(
			database.NewLedgerStore(mirrorDB),
			database.NewCursorRepo(mirrorDB),
			database.NewContractRepo(mirrorDB),
			logger.Named("mirror"),
		)
		sink = services.NewDualSink(writer, mirror, cfg.Mirror.QueueSize, logger)
		writer = sink
	}

	// Create indexer service
	registry := services.NewRegistry(contractRepo, logger)
	backfill := services.NewBackfillService(source, cursorRepo, writer, reporter, cfg.Indexer, logger)
	watcher := services.NewLiveWatcher(source, writer, reporter, cfg.Indexer, logger)
	indexerService := services.NewIndexerService(
		registry,
		backfill,
		watcher,
		source,
		cursorRepo,
		cfg.Indexer,
		logger,
	)

	// Start indexer
	if err := indexerService.Start(ctx); err != nil {
		logger.Fatal("Failed to start indexer", zap.Error(err))
	}

	// Start metrics server
	go startMetricsServer(cfg.Indexer.MetricsPort, logger)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping indexer...")

	// Graceful shutdown: stop producing writes, then drain the mirror
	indexerService.Stop()
	if sink != nil {
		sink.Close()
	}

	m := indexerService.GetMetrics()
	logger.Info("Indexer stopped",
		zap.Int64("backfills_completed", m.BackfillsCompleted),
		zap.Int64("backfill_errors", m.BackfillErrors),
		zap.Uint64("last_chain_height", m.LastChainHeight),
	)
}

func startMetricsServer(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
