package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/commission"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// makeBar builds a bar at baseTime + i hours.
func makeBar(i int, o, h, l, c string) domain.Bar {
	return domain.Bar{
		Symbol: "ETH",
		Time:   baseTime.Add(time.Duration(i) * time.Hour),
		Open:   d(o),
		High:   d(h),
		Low:    d(l),
		Close:  d(c),
		Volume: d("1"),
	}
}

func flatBar(i int, price string) domain.Bar {
	return makeBar(i, price, price, price, price)
}

func fill(symbol string, dir domain.Direction, price, qty, comm string) domain.ExecutionResult {
	return domain.ExecutionResult{
		Symbol:     symbol,
		Direction:  dir,
		Type:       domain.OrderTypeMarket,
		Price:      d(price),
		Quantity:   d(qty),
		Commission: d(comm),
		ExecutedAt: baseTime,
	}
}

func newTestLedger(initial string) *Ledger {
	return NewLedger(d(initial), "USD", NewIDGenerator("test/positions"), nil)
}

type harness struct {
	ledger  *Ledger
	cursor  *series.Cursor
	manager *OrderManager
}

func newHarness(t interface{ Helper() }, initial string, model commission.Model) *harness {
	t.Helper()
	if model == nil {
		model, _ = commission.NewFixedPerTrade(decimal.Zero)
	}
	ledger := newTestLedger(initial)
	cursor := series.NewCursor()
	exec := NewExecutor(model, "USD", NewIDGenerator("test/orders"))
	return &harness{
		ledger:  ledger,
		cursor:  cursor,
		manager: NewOrderManager(ledger, exec, cursor, FillClose, nil),
	}
}

// step advances the cursor and runs the pending check and both flushes
// for bar, mirroring the order the backtester uses.
func (h *harness) step(bar domain.Bar) {
	i := h.cursor.Advance()
	h.manager.CheckPendingOrders(bar, i)
	h.manager.ProcessSignalQueue(bar)
	h.manager.QueueProtectiveExits(bar.Symbol, bar)
	h.manager.ProcessSignalQueue(bar)
}
