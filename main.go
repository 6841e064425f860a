package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"gallery-server/internal/backfill"
	"gallery-server/internal/codec"
	"gallery-server/internal/database"
	"gallery-server/internal/handlers"
	"gallery-server/internal/logging"
	"gallery-server/internal/media"
	"gallery-server/internal/memory"
	"gallery-server/internal/metrics"
	"gallery-server/internal/middleware"
	"gallery-server/internal/pipeline"
	"gallery-server/internal/scheduler"
	"gallery-server/internal/startup"
	"gallery-server/internal/storage"
)

func main() {
	startTime := time.Now()

	// Set the Go memory limit before anything allocates in earnest.
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	// Cancelled on shutdown to unblock queued processing jobs.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Storage layout under the upload root
	layout, err := storage.NewLayout(config.UploadDir)
	if err != nil {
		logging.Fatal("Failed to prepare upload directory: %v", err)
	}

	// Image decoding and external codec tools
	if err := media.InitVips(); err != nil {
		logging.Fatal("Failed to initialize libvips: %v", err)
	}
	defer media.ShutdownVips()
	runner := codec.NewRunner()

	// Processing permit pool
	pool, err := scheduler.NewPool(config.MaxConcurrentProcessing)
	if err != nil {
		logging.Fatal("Invalid processing configuration: %v", err)
	}
	startup.LogProcessingInit(pool.Size(), map[string]bool{
		codec.BinFFmpeg:  runner.Available(codec.BinFFmpeg),
		codec.BinFFprobe: runner.Available(codec.BinFFprobe),
		codec.BinConvert: runner.Available(codec.BinConvert),
	})

	// Public token signing, keyed by a secret persisted in the database
	signer, err := pipeline.NewTokenSigner(ctx, db)
	if err != nil {
		logging.Fatal("Failed to initialize token signer: %v", err)
	}

	pipe := pipeline.New(db, layout, runner, pool, signer, config.MaxFileSize)

	// Derivative backfill
	startup.LogBackfillInit(config.BackfillInterval)
	bf := backfill.New(pipe, config.BackfillInterval)
	bf.Start(ctx)

	// Metrics
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, runtime.Version())
	}
	collector := metrics.NewCollector(db, 30*time.Second)
	collector.Start()

	// Handlers and router
	h := handlers.New(pipe, db, bf)
	router := handlers.Router(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Middleware: metrics innermost, then access logging, compression last
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Metrics(middleware.DefaultMetricsConfig())(router)
	handler = middleware.Logger(loggingConfig)(handler)
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)

	srv := &http.Server{
		Addr:        ":" + config.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Large uploads and long video streams rule out a write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(cancel, srv, metricsSrv, bf, collector)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
}

func handleShutdown(cancel context.CancelFunc, srv, metricsSrv *http.Server, bf *backfill.Runner, collector *metrics.Collector) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	// Unblock permit waits and in-flight codec processes first; their
	// uploads stay on disk and backfill finishes them after restart.
	cancel()

	shutdownCtx, cancelTimeout := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelTimeout()

	startup.LogShutdownStep("Stopping backfill runner")
	bf.Stop()
	startup.LogShutdownStepComplete("Backfill runner stopped")

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
