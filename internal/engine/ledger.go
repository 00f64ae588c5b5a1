package engine

import (
	"io"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
)

// Ledger owns cash, the open positions and the closed-trade log of one
// run. It is shared by every symbol of the run and is not safe for
// concurrent use.
type Ledger struct {
	initial  decimal.Decimal
	currency string
	cash     decimal.Decimal
	realized decimal.Decimal

	positions map[string]*domain.Position // position_id → position
	bySymbol  map[string]string           // symbol → position_id
	closed    []domain.ClosedTrade
	fills     int
	seq       uint64

	ids    *IDGenerator
	logger *slog.Logger
}

// NewLedger creates a ledger holding initial cash in currency.
func NewLedger(initial decimal.Decimal, currency string, ids *IDGenerator, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ledger{
		initial:   initial,
		currency:  currency,
		cash:      initial,
		realized:  decimal.Zero,
		positions: make(map[string]*domain.Position),
		bySymbol:  make(map[string]string),
		ids:       ids,
		logger:    logger,
	}
}

func (l *Ledger) Cash() decimal.Decimal           { return l.cash }
func (l *Ledger) InitialCapital() decimal.Decimal { return l.initial }
func (l *Ledger) Currency() string                { return l.currency }
func (l *Ledger) RealizedPnL() decimal.Decimal    { return l.realized }

// TradeCount returns the number of fills applied to the ledger.
func (l *Ledger) TradeCount() int { return l.fills }

// Position returns a copy of the position with the given id.
func (l *Ledger) Position(id string) (domain.Position, bool) {
	p, ok := l.positions[id]
	if !ok {
		return domain.Position{}, false
	}
	return copyPosition(p), true
}

// PositionBySymbol returns a copy of the open position on symbol.
func (l *Ledger) PositionBySymbol(symbol string) (domain.Position, bool) {
	id, ok := l.bySymbol[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return l.Position(id)
}

// OpenPositions returns copies of all open positions in opening order.
func (l *Ledger) OpenPositions() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, copyPosition(p))
	}
	slices.SortFunc(out, func(a, b domain.Position) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out
}

// ClosedTrades returns a copy of the closed-trade log.
func (l *Ledger) ClosedTrades() []domain.ClosedTrade {
	return slices.Clone(l.closed)
}

// ApplyOpen opens a position from an entry fill. A long must be able to
// pay notional plus commission; a short only the commission. On any
// error the ledger is unchanged.
func (l *Ledger) ApplyOpen(exec domain.ExecutionResult) (domain.Position, error) {
	if _, exists := l.bySymbol[exec.Symbol]; exists {
		return domain.Position{}, domain.ErrPositionExists
	}

	notional := exec.Notional()
	required := exec.Commission
	if exec.Direction == domain.Long {
		required = notional.Add(exec.Commission)
	}
	if l.cash.LessThan(required) {
		return domain.Position{}, domain.ErrInsufficientFunds
	}

	if exec.Direction == domain.Long {
		l.cash = l.cash.Sub(notional)
	} else {
		l.cash = l.cash.Add(notional)
	}
	l.cash = l.cash.Sub(exec.Commission)
	if l.cash.IsNegative() {
		l.cash = decimal.Zero
	}

	l.seq++
	pos := &domain.Position{
		ID:              l.ids.Next(),
		Symbol:          exec.Symbol,
		Direction:       exec.Direction,
		EntryPrice:      exec.Price,
		Quantity:        exec.Quantity,
		EntryTime:       exec.ExecutedAt,
		EntryCommission: exec.Commission,
		StopLoss:        exec.StopLoss,
		TakeProfit:      exec.TakeProfit,
		Tags:            slices.Clone(exec.Tags),
		Seq:             l.seq,
	}
	l.positions[pos.ID] = pos
	l.bySymbol[pos.Symbol] = pos.ID
	l.fills++
	return copyPosition(pos), nil
}

// ApplyClose reduces or closes a position from an exit fill and appends
// one closed-trade row. The closed quantity is capped at the position's
// remaining quantity. Entry commission is charged pro rata to the
// closed fraction; if the exit would leave cash negative, cash is set to
// zero and the shortfall is credited back to this trade's PnL.
func (l *Ledger) ApplyClose(positionID string, exec domain.ExecutionResult) (domain.ClosedTrade, error) {
	pos, ok := l.positions[positionID]
	if !ok {
		return domain.ClosedTrade{}, domain.ErrNoPosition
	}

	qty := decimal.Min(exec.Quantity, pos.Quantity)
	if !qty.IsPositive() {
		return domain.ClosedTrade{}, domain.ErrInvalidQuantity
	}
	full := qty.GreaterThanOrEqual(pos.Quantity)

	gross := domain.GrossPnL(pos.Direction, pos.EntryPrice, exec.Price, qty)
	exitNotional := exec.Price.Mul(qty)
	if pos.Direction == domain.Long {
		l.cash = l.cash.Add(exitNotional)
	} else {
		l.cash = l.cash.Sub(exitNotional)
	}
	l.cash = l.cash.Sub(exec.Commission)

	prorated := pos.EntryCommission
	if !full {
		prorated = pos.EntryCommission.Mul(qty).Div(pos.Quantity)
	}
	net := gross.Sub(prorated).Sub(exec.Commission)

	if l.cash.IsNegative() {
		overdraft := l.cash.Neg()
		l.logger.Warn("cash capped at zero",
			"symbol", pos.Symbol,
			"position_id", pos.ID,
			"overdraft", overdraft.String(),
		)
		net = net.Add(overdraft)
		l.cash = decimal.Zero
	}

	trade := domain.ClosedTrade{
		Seq:             len(l.closed) + 1,
		PositionID:      pos.ID,
		Symbol:          pos.Symbol,
		Direction:       pos.Direction,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       exec.Price,
		Quantity:        qty,
		EntryTime:       pos.EntryTime,
		ExitTime:        exec.ExecutedAt,
		EntryCommission: prorated,
		ExitCommission:  exec.Commission,
		PnL:             net,
		EntryTags:       slices.Clone(pos.Tags),
		ExitTags:        slices.Clone(exec.Tags),
	}
	l.closed = append(l.closed, trade)
	l.realized = l.realized.Add(net)
	l.fills++

	if full {
		delete(l.positions, pos.ID)
		delete(l.bySymbol, pos.Symbol)
	} else {
		pos.Quantity = pos.Quantity.Sub(qty)
		pos.EntryCommission = pos.EntryCommission.Sub(prorated)
	}
	return trade, nil
}

func copyPosition(p *domain.Position) domain.Position {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	return c
}
