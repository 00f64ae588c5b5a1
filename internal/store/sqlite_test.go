package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/backtest"
	"github.com/efreitasn/barreplay/internal/domain"
)

func newSQLiteStore(t *testing.T) *SQLiteRunStore {
	t.Helper()
	s, err := NewSQLiteRunStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRunStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult() *backtest.Result {
	d := decimal.RequireFromString
	entry := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)
	return &backtest.Result{
		Name:           "barreplay",
		Strategy:       "sma-cross",
		Timeframe:      "1h",
		Currency:       "USD",
		InitialCapital: d("10000"),
		Cash:           d("10012.5"),
		RealizedPnL:    d("12.5"),
		UnrealizedPnL:  decimal.Zero,
		FinalCapital:   d("10012.5"),
		TradeCount:     4,
		Symbols: []backtest.SymbolResult{
			{Symbol: "BTCUSDT", Bars: 10, RealizedPnL: d("10"), FinalCapital: d("10010")},
			{Symbol: "ETHUSDT", Bars: 10, RealizedPnL: d("2.5"), FinalCapital: d("10002.5")},
		},
		ClosedTrades: []domain.ClosedTrade{
			{Seq: 1, PositionID: "p1", Symbol: "BTCUSDT", Direction: domain.Long, EntryPrice: d("100"), ExitPrice: d("110"), Quantity: d("1"), EntryTime: entry, ExitTime: entry.Add(time.Hour), PnL: d("10")},
			{Seq: 2, PositionID: "p2", Symbol: "ETHUSDT", Direction: domain.Short, EntryPrice: d("20"), ExitPrice: d("17.5"), Quantity: d("1"), EntryTime: entry, ExitTime: entry.Add(time.Hour), PnL: d("2.5")},
		},
	}
}

func TestSQLiteRunStore_SaveAndGet(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	run := newTestRun("run-1", time.Date(2025, 1, 2, 0, 0, 0, 123, time.UTC))
	run.Result = sampleResult()
	if err := s.Save(ctx, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.SubmittedAt.Equal(run.SubmittedAt) {
		t.Errorf("submitted_at = %v, want %v", got.SubmittedAt, run.SubmittedAt)
	}
	if got.Status != RunStatusCompleted || got.Symbols[0] != "BTCUSDT" {
		t.Errorf("unexpected run %+v", got)
	}
	if got.Result == nil {
		t.Fatal("expected result")
	}
	if !got.Result.FinalCapital.Equal(decimal.RequireFromString("10012.5")) {
		t.Errorf("final capital = %s", got.Result.FinalCapital)
	}
	if len(got.Result.ClosedTrades) != 2 || got.Result.ClosedTrades[1].Direction != domain.Short {
		t.Errorf("closed trades = %+v", got.Result.ClosedTrades)
	}
	if sym, ok := got.Result.Symbol("ETHUSDT"); !ok || sym.Bars != 10 {
		t.Errorf("ETHUSDT result = %+v", sym)
	}
}

func TestSQLiteRunStore_FailedRunHasNoResult(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	run := newTestRun("run-1", time.Now())
	run.Status = RunStatusFailed
	run.Error = "data_not_found: BTCUSDT"
	if err := s.Save(ctx, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Result != nil || got.Error != run.Error {
		t.Fatalf("unexpected run %+v", got)
	}
}

func TestSQLiteRunStore_Get_NotFound(t *testing.T) {
	s := newSQLiteStore(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestSQLiteRunStore_List_NewestFirst(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Save(ctx, newTestRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	runs, total, err := s.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Fatalf("unexpected page %v", runs)
	}

	runs, _, _ = s.List(ctx, 9, 2)
	if len(runs) != 0 {
		t.Fatalf("expected empty page, got %d runs", len(runs))
	}
}

func TestSQLiteRunStore_TradePnL(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	run := newTestRun("run-1", time.Now())
	run.Result = sampleResult()
	s.Save(ctx, run)
	// Saving again replaces the trade rows.
	s.Save(ctx, run)

	pnl, err := s.TradePnL(ctx, "run-1")
	if err != nil {
		t.Fatalf("TradePnL: %v", err)
	}
	if !pnl["BTCUSDT"].Equal(decimal.NewFromInt(10)) || !pnl["ETHUSDT"].Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected pnl %v", pnl)
	}
}
