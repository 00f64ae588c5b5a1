// Command barreplay runs the backtest described by a YAML run file and
// prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/barreplay/internal/backtest"
	"github.com/efreitasn/barreplay/internal/config"
	"github.com/efreitasn/barreplay/internal/store"
	"github.com/efreitasn/barreplay/internal/strategy/builtins"
)

type options struct {
	runFile    string
	dataDir    string
	dataFormat string
	resultsDB  string
	logLevel   string
	withSeries bool
}

func main() {
	var opts options
	flag.StringVar(&opts.runFile, "run", "", "Path to the YAML run file (or first argument)")
	flag.StringVar(&opts.dataDir, "data", "data", "Directory holding <SYMBOL>/<timeframe> bar files")
	flag.StringVar(&opts.dataFormat, "format", config.FormatBinary, "Bar file format: binary or parquet")
	flag.StringVar(&opts.resultsDB, "results", "", "Optional SQLite database the run is saved to")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.withSeries, "series", false, "Include timestamps and indicator series in the output")
	flag.Parse()
	if opts.runFile == "" {
		opts.runFile = flag.Arg(0)
	}

	logger := newLogger(os.Stderr, opts.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		logger.Error("backtest failed", slog.String("error", err.Error()))
		if backtest.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// newLogger builds the JSON logger the CLI writes to w. Stdout is left
// for the result.
func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	}))
}

func run(ctx context.Context, opts options, out io.Writer, logger *slog.Logger) error {
	if opts.runFile == "" {
		return errors.New("no run file given")
	}
	rf, err := config.LoadRun(opts.runFile)
	if err != nil {
		return err
	}
	cfg, err := rf.BacktestConfig()
	if err != nil {
		return err
	}

	var source backtest.BarSource
	switch opts.dataFormat {
	case config.FormatBinary:
		source = store.NewFileBarSource(opts.dataDir)
	case config.FormatParquet:
		source = store.NewParquetBarSource(opts.dataDir)
	default:
		return fmt.Errorf("unknown data format %q", opts.dataFormat)
	}

	lastDecile := -1
	progress := func(processed, total int) {
		if decile := processed * 10 / total; decile != lastDecile {
			lastDecile = decile
			logger.Debug("progress", slog.Int("processed", processed), slog.Int("total", total))
		}
	}

	submitted := time.Now().UTC()
	runner := backtest.New(source, builtins.NewRegistry(),
		backtest.WithLogger(logger),
		backtest.WithProgress(progress),
	)
	result, err := runner.Run(ctx, cfg)
	if err != nil {
		return err
	}

	if opts.resultsDB != "" {
		if err := save(ctx, opts.resultsDB, cfg, submitted, result); err != nil {
			return err
		}
	}

	if !opts.withSeries {
		for i := range result.Symbols {
			result.Symbols[i].Timestamps = nil
			result.Symbols[i].Indicators = nil
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func save(ctx context.Context, path string, cfg backtest.Config, submitted time.Time, result *backtest.Result) error {
	db, err := store.NewSQLiteRunStore(path)
	if err != nil {
		return fmt.Errorf("opening results database: %w", err)
	}
	defer db.Close()

	return db.Save(ctx, &store.Run{
		ID:          uuid.NewString(),
		Status:      store.RunStatusCompleted,
		Strategy:    cfg.Strategy,
		Symbols:     cfg.Symbols,
		Timeframe:   cfg.Timeframe,
		SubmittedAt: submitted,
		FinishedAt:  time.Now().UTC(),
		Result:      result,
	})
}
