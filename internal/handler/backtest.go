package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/backtest"
	"github.com/efreitasn/barreplay/internal/config"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/service"
	"github.com/efreitasn/barreplay/internal/store"
)

// BacktestHandler handles HTTP requests for backtest and strategy
// endpoints.
type BacktestHandler struct {
	svc *service.BacktestService
}

// NewBacktestHandler creates a new BacktestHandler.
func NewBacktestHandler(svc *service.BacktestService) *BacktestHandler {
	return &BacktestHandler{svc: svc}
}

// runResponse is the JSON response for a single run. Money is encoded as
// decimal strings.
type runResponse struct {
	RunID       string           `json:"run_id"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	Strategy    string           `json:"strategy"`
	Symbols     []string         `json:"symbols"`
	Timeframe   string           `json:"timeframe"`
	SubmittedAt string           `json:"submitted_at"`
	FinishedAt  string           `json:"finished_at"`
	Summary     *summaryResponse `json:"summary"`
}

// summaryResponse holds the run totals and the per-symbol results.
type summaryResponse struct {
	Name           string                  `json:"name"`
	Currency       string                  `json:"currency"`
	InitialCapital decimal.Decimal         `json:"initial_capital"`
	Cash           decimal.Decimal         `json:"cash"`
	RealizedPnL    decimal.Decimal         `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal         `json:"unrealized_pnl"`
	FinalCapital   decimal.Decimal         `json:"final_capital"`
	TradeCount     int                     `json:"trade_count"`
	ClosedTrades   int                     `json:"closed_trades"`
	OpenPositions  int                     `json:"open_positions"`
	Symbols        []backtest.SymbolResult `json:"symbols"`
}

// runListResponse is the JSON response for GET /backtests.
type runListResponse struct {
	Runs  []runResponse `json:"runs"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// Submit handles POST /backtests. The backtest runs inside the request.
func (h *BacktestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req config.RunFile
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	run, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		if run != nil {
			// Failed runs are stored; report them with their id.
			WriteJSON(w, runFailedStatus(err), buildRunResponse(run, false))
			return
		}
		mapBacktestError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildRunResponse(run, false))
}

// Get handles GET /backtests/{run_id}. With ?series=true the per-symbol
// timestamps and indicator series are included.
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	withSeries := false
	if s := r.URL.Query().Get("series"); s != "" {
		var err error
		withSeries, err = strconv.ParseBool(s)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "series must be a boolean")
			return
		}
	}

	run, err := h.svc.Get(r.Context(), runID)
	if err != nil {
		mapBacktestError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildRunResponse(run, withSeries))
}

// List handles GET /backtests.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	runs, total, err := h.svc.List(r.Context(), page, limit)
	if err != nil {
		mapBacktestError(w, err)
		return
	}

	resp := make([]runResponse, len(runs))
	for i, run := range runs {
		resp[i] = buildRunResponse(run, false)
	}
	WriteJSON(w, http.StatusOK, runListResponse{
		Runs:  resp,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// Trades handles GET /backtests/{run_id}/trades.
func (h *BacktestHandler) Trades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.svc.Trades(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		mapBacktestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// Positions handles GET /backtests/{run_id}/positions.
func (h *BacktestHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.Positions(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		mapBacktestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// PnL handles GET /backtests/{run_id}/pnl.
func (h *BacktestHandler) PnL(w http.ResponseWriter, r *http.Request) {
	pnl, err := h.svc.TradePnL(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		mapBacktestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"pnl": pnl})
}

// Strategies handles GET /strategies.
func (h *BacktestHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"strategies": h.svc.Strategies()})
}

func buildRunResponse(run *store.Run, withSeries bool) runResponse {
	resp := runResponse{
		RunID:       run.ID,
		Status:      string(run.Status),
		Error:       run.Error,
		Strategy:    run.Strategy,
		Symbols:     run.Symbols,
		Timeframe:   string(run.Timeframe),
		SubmittedAt: run.SubmittedAt.UTC().Format(time.RFC3339),
		FinishedAt:  run.FinishedAt.UTC().Format(time.RFC3339),
	}
	if run.Result == nil {
		return resp
	}

	res := run.Result
	symbols := lo.Map(res.Symbols, func(s backtest.SymbolResult, _ int) backtest.SymbolResult {
		if !withSeries {
			s.Timestamps = nil
			s.Indicators = nil
		}
		return s
	})
	resp.Summary = &summaryResponse{
		Name:           res.Name,
		Currency:       res.Currency,
		InitialCapital: res.InitialCapital,
		Cash:           res.Cash,
		RealizedPnL:    res.RealizedPnL,
		UnrealizedPnL:  res.UnrealizedPnL,
		FinalCapital:   res.FinalCapital,
		TradeCount:     res.TradeCount,
		ClosedTrades:   len(res.ClosedTrades),
		OpenPositions:  len(res.OpenPositions),
		Symbols:        symbols,
	}
	return resp
}

// runFailedStatus picks the status for a run that was stored as failed.
func runFailedStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrDataNotFound), errors.Is(err, domain.ErrCorruptData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// mapBacktestError maps domain errors to HTTP responses for backtest
// endpoints.
func mapBacktestError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}
	var configErr *domain.ConfigError
	if errors.As(err, &configErr) {
		code := "validation_error"
		if errors.Is(err, domain.ErrUnknownStrategy) {
			code = "unknown_strategy"
		}
		WriteError(w, http.StatusBadRequest, code, configErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		WriteError(w, http.StatusNotFound, "run_not_found", "Run not found")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
