package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/backtest"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	strategy      TEXT NOT NULL,
	symbols       TEXT NOT NULL,
	timeframe     TEXT NOT NULL,
	submitted_at  TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	final_capital TEXT,
	trade_count   INTEGER NOT NULL DEFAULT 0,
	result        TEXT
);
CREATE INDEX IF NOT EXISTS runs_submitted ON runs (submitted_at);
CREATE TABLE IF NOT EXISTS closed_trades (
	run_id      TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	position_id TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	direction   TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price  TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	entry_time  TEXT NOT NULL,
	exit_time   TEXT NOT NULL,
	pnl         TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

// SQLiteRunStore is a RunStore backed by a SQLite database. Decimals and
// times are stored as TEXT so values round-trip exactly. The full result
// is kept as a JSON document next to a closed_trades table for ad-hoc
// queries.
type SQLiteRunStore struct {
	db *sql.DB
}

// NewSQLiteRunStore opens (or creates) a SQLite database at dbPath and
// creates its tables.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteRunStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

// Save inserts run, replacing any run with the same id.
func (s *SQLiteRunStore) Save(ctx context.Context, run *Run) error {
	var (
		result     sql.NullString
		final      sql.NullString
		tradeCount int
	)
	if run.Result != nil {
		doc, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		result = sql.NullString{String: string(doc), Valid: true}
		final = sql.NullString{String: run.Result.FinalCapital.String(), Valid: true}
		tradeCount = run.Result.TradeCount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM closed_trades WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, status, error, strategy, symbols, timeframe, submitted_at, finished_at, final_capital, trade_count, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Error, run.Strategy, strings.Join(run.Symbols, ","),
		string(run.Timeframe), formatTime(run.SubmittedAt), formatTime(run.FinishedAt),
		final, tradeCount, result)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	if run.Result != nil {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO closed_trades
			(run_id, seq, position_id, symbol, direction, entry_price, exit_price, quantity, entry_time, exit_time, pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range run.Result.ClosedTrades {
			_, err := stmt.ExecContext(ctx, run.ID, t.Seq, t.PositionID, t.Symbol, string(t.Direction),
				t.EntryPrice.String(), t.ExitPrice.String(), t.Quantity.String(),
				formatTime(t.EntryTime), formatTime(t.ExitTime), t.PnL.String())
			if err != nil {
				return fmt.Errorf("inserting trade %d of run %s: %w", t.Seq, run.ID, err)
			}
		}
	}
	return tx.Commit()
}

const runColumns = `id, status, error, strategy, symbols, timeframe, submitted_at, finished_at, result`

// Get retrieves a run by id.
func (s *SQLiteRunStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	return run, err
}

// List returns runs newest first.
func (s *SQLiteRunStore) List(ctx context.Context, page, limit int) ([]*Run, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	start, end := paginate(total, page, limit)
	if start == end {
		return []*Run{}, total, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
		ORDER BY submitted_at DESC, rowid DESC LIMIT ? OFFSET ?`, end-start, start)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*Run, 0, end-start)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, run)
	}
	return out, total, rows.Err()
}

// TradePnL sums the PnL of the closed trades of a run, per symbol.
func (s *SQLiteRunStore) TradePnL(ctx context.Context, runID string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, pnl FROM closed_trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var symbol, pnl string
		if err := rows.Scan(&symbol, &pnl); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(pnl)
		if err != nil {
			return nil, fmt.Errorf("%w: trade pnl %q", domain.ErrCorruptData, pnl)
		}
		out[symbol] = out[symbol].Add(v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                 Run
		status, symbols, tf string
		submitted, finished string
		result              sql.NullString
	)
	if err := row.Scan(&run.ID, &status, &run.Error, &run.Strategy, &symbols, &tf, &submitted, &finished, &result); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.Timeframe = series.Timeframe(tf)
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}

	var err error
	if run.SubmittedAt, err = parseTime(submitted); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	if result.Valid {
		run.Result = &backtest.Result{}
		if err := json.Unmarshal([]byte(result.String), run.Result); err != nil {
			return nil, fmt.Errorf("%w: result of run %s: %v", domain.ErrCorruptData, run.ID, err)
		}
	}
	return &run, nil
}

// timeLayout is fixed-width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q", domain.ErrCorruptData, s)
	}
	return t, nil
}
