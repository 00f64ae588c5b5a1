// Package service validates backtest requests, runs them and keeps the
// resulting runs.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/backtest"
	"github.com/efreitasn/barreplay/internal/config"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/store"
	"github.com/efreitasn/barreplay/internal/strategy"
)

// Runner executes one backtest.
type Runner interface {
	Run(ctx context.Context, cfg backtest.Config) (*backtest.Result, error)
}

// BacktestService handles backtest submission, retrieval and listing.
type BacktestService struct {
	runner     Runner
	strategies *strategy.Registry
	runs       store.RunStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewBacktestService creates a new BacktestService with the given
// dependencies.
func NewBacktestService(runner Runner, strategies *strategy.Registry, runs store.RunStore, logger *slog.Logger) *BacktestService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BacktestService{
		runner:     runner,
		strategies: strategies,
		runs:       runs,
		logger:     logger,
		now:        time.Now,
	}
}

// Submit validates rf, runs the backtest synchronously and stores the run.
//
// Configuration errors are returned without storing anything. Any other
// failure is stored as a failed run and returned together with it.
func (s *BacktestService) Submit(ctx context.Context, rf config.RunFile) (*store.Run, error) {
	cfg, err := rf.BacktestConfig()
	if err != nil {
		return nil, err
	}
	if !s.strategies.Has(cfg.Strategy) {
		return nil, &domain.ConfigError{
			Field: "strategy",
			Err:   fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, cfg.Strategy),
		}
	}

	run := &store.Run{
		ID:          uuid.NewString(),
		Strategy:    cfg.Strategy,
		Symbols:     cfg.Symbols,
		Timeframe:   cfg.Timeframe,
		SubmittedAt: s.now().UTC(),
	}
	// Ids derived from the run name stay unique per run unless one was given.
	if rf.Name == "" {
		cfg.Name = run.ID
	}

	result, err := s.runner.Run(ctx, cfg)
	run.FinishedAt = s.now().UTC()
	if err != nil {
		if backtest.IsConfigError(err) {
			return nil, err
		}
		run.Status = store.RunStatusFailed
		run.Error = err.Error()
		s.logger.Error("backtest failed",
			slog.String("run_id", run.ID),
			slog.String("strategy", run.Strategy),
			slog.String("error", err.Error()),
		)
		if saveErr := s.runs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
			return nil, errors.Join(err, saveErr)
		}
		return run, err
	}

	run.Status = store.RunStatusCompleted
	run.Result = result
	if err := s.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("storing run %s: %w", run.ID, err)
	}
	s.logger.Info("backtest stored",
		slog.String("run_id", run.ID),
		slog.Int("trades", len(result.ClosedTrades)),
		slog.String("final_capital", result.FinalCapital.String()),
	)
	return run, nil
}

// Get retrieves a run by id.
func (s *BacktestService) Get(ctx context.Context, runID string) (*store.Run, error) {
	return s.runs.Get(ctx, runID)
}

// List returns a page of runs, newest first, and the total number of runs.
func (s *BacktestService) List(ctx context.Context, page, limit int) ([]*store.Run, int, error) {
	if page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}
	return s.runs.List(ctx, page, limit)
}

// Strategies returns the registered strategy names.
func (s *BacktestService) Strategies() []string {
	return s.strategies.List()
}

// Trades returns the closed-trade ledger of a run. Failed runs have none.
func (s *BacktestService) Trades(ctx context.Context, runID string) ([]domain.ClosedTrade, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Result == nil {
		return []domain.ClosedTrade{}, nil
	}
	return run.Result.ClosedTrades, nil
}

// Positions returns the positions a run left open, valued at the last
// close of their symbol.
func (s *BacktestService) Positions(ctx context.Context, runID string) ([]backtest.OpenPosition, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Result == nil {
		return []backtest.OpenPosition{}, nil
	}
	return run.Result.OpenPositions, nil
}

// tradePnLStore is implemented by run stores that can aggregate trade PnL
// without loading the full result.
type tradePnLStore interface {
	TradePnL(ctx context.Context, runID string) (map[string]decimal.Decimal, error)
}

// TradePnL returns the summed net PnL of a run's closed trades, per
// symbol. Symbols without closed trades are absent.
func (s *BacktestService) TradePnL(ctx context.Context, runID string) (map[string]decimal.Decimal, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if q, ok := s.runs.(tradePnLStore); ok {
		return q.TradePnL(ctx, runID)
	}
	out := make(map[string]decimal.Decimal)
	if run.Result == nil {
		return out, nil
	}
	for _, t := range run.Result.ClosedTrades {
		out[t.Symbol] = out[t.Symbol].Add(t.PnL)
	}
	return out, nil
}
