package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/barreplay/internal/backtest"
	"github.com/efreitasn/barreplay/internal/config"
	"github.com/efreitasn/barreplay/internal/handler"
	"github.com/efreitasn/barreplay/internal/service"
	"github.com/efreitasn/barreplay/internal/store"
	"github.com/efreitasn/barreplay/internal/strategy/builtins"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Bar data.
	var source backtest.BarSource
	switch cfg.DataFormat {
	case config.FormatParquet:
		source = store.NewParquetBarSource(cfg.DataDir)
	default:
		source = store.NewFileBarSource(cfg.DataDir)
	}

	// Run storage.
	var runs store.RunStore
	if cfg.ResultsDB != "" {
		db, err := store.NewSQLiteRunStore(cfg.ResultsDB)
		if err != nil {
			logger.Error("failed to open results database",
				slog.String("path", cfg.ResultsDB),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		defer db.Close()
		runs = db
	} else {
		runs = store.NewMemoryRunStore()
	}

	strategies := builtins.NewRegistry()
	runner := backtest.New(source, strategies, backtest.WithLogger(logger))
	backtestSvc := service.NewBacktestService(runner, strategies, runs, logger)

	// Router.
	router := handler.NewRouter(backtestSvc, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("data_dir", cfg.DataDir),
			slog.String("data_format", cfg.DataFormat),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: in-flight backtests finish or are cut off by the
	// shutdown timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
