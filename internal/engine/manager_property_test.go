package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/barreplay/internal/domain"
)

// Property 3: a long limit at L triggers on the first bar after its
// creation whose low is <= L, and an untriggered order with time in force
// n leaves the book exactly n bars after creation.

func TestProperty_PendingTriggerAndExpiryTiming(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 30).Draw(t, "bars")
		lows := make([]int64, n)
		for i := range lows {
			lows[i] = rapid.Int64Range(50, 150).Draw(t, "low")
		}
		created := rapid.IntRange(0, n-1).Draw(t, "created")
		limit := rapid.Int64Range(50, 150).Draw(t, "limit")
		tif := rapid.IntRange(0, 10).Draw(t, "tif")

		h := newHarness(t, "1000000", nil)
		var filledAt, removedAt = -1, -1

		for i := 0; i < n; i++ {
			low := decimal.NewFromInt(lows[i])
			bar := domain.Bar{
				Symbol: "ETH",
				Time:   baseTime,
				Open:   low.Add(decimal.NewFromInt(1)),
				High:   low.Add(decimal.NewFromInt(2)),
				Low:    low,
				Close:  low.Add(decimal.NewFromInt(1)),
			}
			hadOrder := len(h.manager.PendingOrders()) == 1
			h.step(bar)
			if hadOrder && len(h.manager.PendingOrders()) == 0 && removedAt < 0 {
				removedAt = i
			}
			if _, ok := h.manager.Position("ETH"); ok && filledAt < 0 {
				filledAt = i
			}
			if i == created {
				intent := domain.LimitOrder("ETH", domain.Long, decimal.NewFromInt(1), decimal.NewFromInt(limit), "L").WithTimeInForce(tif)
				if err := h.manager.QueueEntry(intent); err != nil {
					t.Fatalf("QueueEntry: %v", err)
				}
			}
		}

		wantFill := -1
		for i := created + 1; i < n; i++ {
			if tif > 0 && i-created >= tif {
				break
			}
			if lows[i] <= limit {
				wantFill = i
				break
			}
		}
		if filledAt != wantFill {
			t.Fatalf("filled at bar %d, want %d", filledAt, wantFill)
		}
		if wantFill >= 0 {
			if removedAt != wantFill {
				t.Fatalf("order left the book at %d, want %d", removedAt, wantFill)
			}
			return
		}
		wantRemoved := -1
		if tif > 0 && created+tif < n {
			wantRemoved = created + tif
		}
		if removedAt != wantRemoved {
			t.Fatalf("order left the book at %d, want %d", removedAt, wantRemoved)
		}
	})
}
