package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"
)

// signal is an intent waiting in the queue for the next flush. Exits are
// bound to the position they were issued against.
type signal struct {
	intent     domain.TradeIntent
	exit       bool
	positionID string
}

// OrderManager mediates between strategy intents, the Executor and the
// Ledger for one symbol's bar loop. It owns the signal queue and the
// pending-order book. It is not safe for concurrent use.
type OrderManager struct {
	ledger   *Ledger
	executor *Executor
	cursor   *series.Cursor
	fill     FillPolicy
	pending  *PendingBook
	queue    []signal
	logger   *slog.Logger
}

// NewOrderManager creates an OrderManager. Market orders fill at the
// price fill selects from the bar being processed.
func NewOrderManager(ledger *Ledger, executor *Executor, cursor *series.Cursor, fill FillPolicy, logger *slog.Logger) *OrderManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &OrderManager{
		ledger:   ledger,
		executor: executor,
		cursor:   cursor,
		fill:     fill,
		pending:  NewPendingBook(),
		logger:   logger,
	}
}

// QueueEntry accepts an entry intent. Market intents join the signal
// queue and fill on the next flush; limit and stop intents rest in the
// pending book, stamped with the current bar index, until triggered,
// expired or cancelled. Rejected intents are logged and the reason is
// returned; nothing is queued.
func (m *OrderManager) QueueEntry(intent domain.TradeIntent) error {
	if err := m.acceptEntry(intent); err != nil {
		m.reject(intent, err)
		return err
	}
	if !intent.IsPending() {
		m.queue = append(m.queue, signal{intent: intent})
		return nil
	}
	if m.pending.Insert(domain.PendingOrder{Intent: intent, CreatedIndex: m.cursor.Index()}) {
		m.logger.Debug("pending order replaced", "symbol", intent.Symbol, "client_id", intent.ClientID)
	}
	return nil
}

func (m *OrderManager) acceptEntry(intent domain.TradeIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if intent.IsPending() && intent.ClientID == "" {
		return domain.ErrMissingClientID
	}
	if domain.IsDepleted(m.ledger.Cash()) {
		return domain.ErrCapitalDepleted
	}
	if _, ok := m.ledger.PositionBySymbol(intent.Symbol); ok {
		return domain.ErrPositionExists
	}
	return nil
}

// QueueExit queues an exit against the open position on symbol. The
// intent must oppose the position; its quantity is capped at the
// position's remaining quantity. Limit and stop exits are treated as
// already triggered and fill at their price on the next flush.
func (m *OrderManager) QueueExit(symbol string, intent domain.TradeIntent) error {
	if intent.Symbol == "" {
		intent.Symbol = symbol
	}
	pos, ok := m.ledger.PositionBySymbol(symbol)
	if !ok {
		m.reject(intent, domain.ErrNoPosition)
		return domain.ErrNoPosition
	}
	if !intent.Direction.Opposes(pos.Direction) {
		m.reject(intent, domain.ErrDirectionMismatch)
		return domain.ErrDirectionMismatch
	}
	intent = intent.WithQuantity(decimal.Min(intent.Quantity, pos.Quantity))
	if err := intent.Validate(); err != nil {
		m.reject(intent, err)
		return err
	}
	m.queue = append(m.queue, signal{intent: intent, exit: true, positionID: pos.ID})
	return nil
}

// ClosePosition queues a market exit for the whole open position on
// symbol.
func (m *OrderManager) ClosePosition(symbol string, tags ...string) error {
	pos, ok := m.ledger.PositionBySymbol(symbol)
	if !ok {
		return domain.ErrNoPosition
	}
	intent := domain.MarketOrder(symbol, pos.Direction.Opposite(), pos.Quantity).WithTags(tags...)
	return m.QueueExit(symbol, intent)
}

// CancelPendingOrder removes the resting order with clientID. Cancelling
// an unknown or already removed order is a no-op.
func (m *OrderManager) CancelPendingOrder(clientID string) bool {
	return m.pending.Remove(clientID)
}

// CheckPendingOrders evaluates every resting order against bar. Expiry is
// checked before the trigger, so an order whose time in force has run
// out is dropped even if this bar would have filled it. Triggered orders
// move to the signal queue. Both leave the book in this pass.
func (m *OrderManager) CheckPendingOrders(bar domain.Bar, barIndex int) (triggered, expired int) {
	var fired, dropped []domain.PendingOrder
	m.pending.Walk(func(o domain.PendingOrder) bool {
		if barIndex < o.CreatedIndex {
			return true
		}
		if o.Expired(barIndex) {
			dropped = append(dropped, o)
		} else if o.Triggered(bar) {
			fired = append(fired, o)
		}
		return true
	})

	for _, o := range dropped {
		m.pending.Remove(o.Intent.ClientID)
		m.logger.Debug("pending order expired",
			"symbol", o.Intent.Symbol,
			"client_id", o.Intent.ClientID,
			"bar_index", barIndex,
		)
	}
	for _, o := range fired {
		m.pending.Remove(o.Intent.ClientID)
		m.queue = append(m.queue, signal{intent: o.Intent})
	}
	return len(fired), len(dropped)
}

// QueueProtectiveExits checks the stop-loss, then the take-profit, of the
// open position on symbol against bar and queues an exit at the level
// that was hit. At most one exit is queued.
func (m *OrderManager) QueueProtectiveExits(symbol string, bar domain.Bar) bool {
	pos, ok := m.ledger.PositionBySymbol(symbol)
	if !ok {
		return false
	}
	exitDir := pos.Direction.Opposite()

	if sl := pos.StopLoss; sl.Valid {
		hit := (pos.Direction == domain.Long && bar.Low.LessThanOrEqual(sl.Decimal)) ||
			(pos.Direction == domain.Short && bar.High.GreaterThanOrEqual(sl.Decimal))
		if hit {
			intent := domain.StopOrder(symbol, exitDir, pos.Quantity, sl.Decimal, "").WithTags("stop_loss")
			return m.QueueExit(symbol, intent) == nil
		}
	}
	if tp := pos.TakeProfit; tp.Valid {
		hit := (pos.Direction == domain.Long && bar.High.GreaterThanOrEqual(tp.Decimal)) ||
			(pos.Direction == domain.Short && bar.Low.LessThanOrEqual(tp.Decimal))
		if hit {
			intent := domain.LimitOrder(symbol, exitDir, pos.Quantity, tp.Decimal, "").WithTags("take_profit")
			return m.QueueExit(symbol, intent) == nil
		}
	}
	return false
}

// ProcessSignalQueue executes every queued signal against bar and applies
// the fills to the ledger. The queue is swapped out first, so anything
// queued while flushing waits for the next flush. A signal that opposes
// the open position on its symbol is an exit; anything else is an entry.
// Rejected signals are logged and dropped. It returns the applied fills.
func (m *OrderManager) ProcessSignalQueue(bar domain.Bar) []domain.ExecutionResult {
	queue := m.queue
	m.queue = nil
	if len(queue) == 0 {
		return nil
	}

	reference := m.fill.Price(bar)
	var results []domain.ExecutionResult
	for _, s := range queue {
		intent := s.intent
		pos, hasPos := m.ledger.PositionBySymbol(intent.Symbol)
		opposes := hasPos && intent.Direction.Opposes(pos.Direction)

		if s.exit || opposes {
			if !hasPos || (s.positionID != "" && s.positionID != pos.ID) {
				m.reject(intent, domain.ErrNoPosition)
				continue
			}
			if !opposes {
				m.reject(intent, domain.ErrDirectionMismatch)
				continue
			}
			intent = intent.WithQuantity(decimal.Min(intent.Quantity, pos.Quantity))
			exec, err := m.executor.Execute(intent, bar, reference)
			if err != nil {
				m.reject(intent, err)
				continue
			}
			if _, err := m.ledger.ApplyClose(pos.ID, exec); err != nil {
				m.reject(intent, err)
				continue
			}
			results = append(results, exec)
			continue
		}

		exec, err := m.executor.Execute(intent, bar, reference)
		if err != nil {
			m.reject(intent, err)
			continue
		}
		if _, err := m.ledger.ApplyOpen(exec); err != nil {
			m.reject(intent, err)
			continue
		}
		results = append(results, exec)
	}
	return results
}

// Position returns the open position on symbol.
func (m *OrderManager) Position(symbol string) (domain.Position, bool) {
	return m.ledger.PositionBySymbol(symbol)
}

// PendingOrders returns a snapshot of the resting orders, oldest first.
func (m *OrderManager) PendingOrders() []domain.PendingOrder {
	return m.pending.Orders()
}

// Cash returns the ledger's current cash.
func (m *OrderManager) Cash() decimal.Decimal {
	return m.ledger.Cash()
}

func (m *OrderManager) reject(intent domain.TradeIntent, err error) {
	level := slog.LevelInfo
	if errors.Is(err, domain.ErrCapitalDepleted) {
		level = slog.LevelWarn
	}
	m.logger.Log(context.Background(), level, "signal rejected",
		"symbol", intent.Symbol,
		"direction", string(intent.Direction),
		"type", string(intent.Type),
		"client_id", intent.ClientID,
		"reason", err.Error(),
	)
}
