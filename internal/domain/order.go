package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a position or intent.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid reports whether d is Long or Short.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Opposite returns the other side. Invalid directions map to themselves.
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	}
	return d
}

// Opposes reports whether d closes a position held in direction other.
func (d Direction) Opposes(other Direction) bool {
	return d.Valid() && other.Valid() && d != other
}

// Sign returns +1 for Long and -1 for Short.
func (d Direction) Sign() decimal.Decimal {
	if d == Short {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// OrderType distinguishes immediate orders from price-triggered ones.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop:
		return true
	}
	return false
}

// TradeIntent is a strategy-issued request to enter or exit a position.
// Values are immutable: the With* helpers return modified copies.
type TradeIntent struct {
	Symbol     string
	Direction  Direction
	Type       OrderType
	Quantity   decimal.Decimal
	LimitPrice decimal.NullDecimal
	StopPrice  decimal.NullDecimal
	// TimeInForceBars is the number of bars a pending order may rest
	// untriggered. Zero means good until cancelled.
	TimeInForceBars int
	// ClientID keys pending orders; required for limit and stop entries.
	ClientID   string
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	Tags       []string
}

// MarketOrder builds a market intent.
func MarketOrder(symbol string, dir Direction, qty decimal.Decimal) TradeIntent {
	return TradeIntent{Symbol: symbol, Direction: dir, Type: OrderTypeMarket, Quantity: qty}
}

// LimitOrder builds a limit intent resting at price under clientID.
func LimitOrder(symbol string, dir Direction, qty, price decimal.Decimal, clientID string) TradeIntent {
	return TradeIntent{
		Symbol:     symbol,
		Direction:  dir,
		Type:       OrderTypeLimit,
		Quantity:   qty,
		LimitPrice: Price(price),
		ClientID:   clientID,
	}
}

// StopOrder builds a stop intent triggered at price under clientID.
func StopOrder(symbol string, dir Direction, qty, price decimal.Decimal, clientID string) TradeIntent {
	return TradeIntent{
		Symbol:    symbol,
		Direction: dir,
		Type:      OrderTypeStop,
		Quantity:  qty,
		StopPrice: Price(price),
		ClientID:  clientID,
	}
}

// WithQuantity returns a copy of i with quantity qty.
func (i TradeIntent) WithQuantity(qty decimal.Decimal) TradeIntent {
	i.Quantity = qty
	return i
}

// WithStopLoss returns a copy of i that attaches a stop-loss on fill.
func (i TradeIntent) WithStopLoss(price decimal.Decimal) TradeIntent {
	i.StopLoss = Price(price)
	return i
}

// WithTakeProfit returns a copy of i that attaches a take-profit on fill.
func (i TradeIntent) WithTakeProfit(price decimal.Decimal) TradeIntent {
	i.TakeProfit = Price(price)
	return i
}

// WithTimeInForce returns a copy of i that expires after bars bars.
func (i TradeIntent) WithTimeInForce(bars int) TradeIntent {
	i.TimeInForceBars = bars
	return i
}

// WithTags returns a copy of i carrying tags.
func (i TradeIntent) WithTags(tags ...string) TradeIntent {
	i.Tags = slices.Clone(tags)
	return i
}

// IsPending reports whether the intent waits for a price trigger.
func (i TradeIntent) IsPending() bool {
	return i.Type == OrderTypeLimit || i.Type == OrderTypeStop
}

// TriggerPrice returns the configured limit or stop price.
func (i TradeIntent) TriggerPrice() (decimal.Decimal, bool) {
	switch i.Type {
	case OrderTypeLimit:
		return i.LimitPrice.Decimal, i.LimitPrice.Valid
	case OrderTypeStop:
		return i.StopPrice.Decimal, i.StopPrice.Valid
	}
	return decimal.Zero, false
}

// Validate checks the fields every intent needs regardless of whether it
// enters or exits. Client ids are checked by the order manager, which
// only requires them for pending entries.
func (i TradeIntent) Validate() error {
	if i.Symbol == "" {
		return &ValidationError{Message: "symbol is required"}
	}
	if !i.Direction.Valid() {
		return &ValidationError{Message: fmt.Sprintf("direction must be 'long' or 'short', got %q", i.Direction)}
	}
	if !i.Type.Valid() {
		return &ValidationError{Message: fmt.Sprintf("order type must be one of: market, limit, stop, got %q", i.Type)}
	}
	if !i.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if i.IsPending() {
		price, ok := i.TriggerPrice()
		if !ok {
			return ErrMissingPrice
		}
		if !price.IsPositive() {
			return ErrInvalidPrice
		}
	}
	if i.TimeInForceBars < 0 {
		return &ValidationError{Message: "time_in_force_bars must be >= 0"}
	}
	return nil
}

// PendingOrder is a limit or stop intent waiting for its trigger.
type PendingOrder struct {
	Intent       TradeIntent
	CreatedIndex int
}

// Expired reports whether the order's time in force has elapsed at barIndex.
func (p PendingOrder) Expired(barIndex int) bool {
	tif := p.Intent.TimeInForceBars
	return tif > 0 && barIndex-p.CreatedIndex >= tif
}

// Triggered reports whether bar reaches the order's trigger price.
// Limit longs fill on a dip to the limit, stop longs on a rise to the stop;
// shorts mirror both.
func (p PendingOrder) Triggered(bar Bar) bool {
	price, ok := p.Intent.TriggerPrice()
	if !ok {
		return false
	}
	switch {
	case p.Intent.Type == OrderTypeLimit && p.Intent.Direction == Long:
		return bar.Low.LessThanOrEqual(price)
	case p.Intent.Type == OrderTypeLimit && p.Intent.Direction == Short:
		return bar.High.GreaterThanOrEqual(price)
	case p.Intent.Type == OrderTypeStop && p.Intent.Direction == Long:
		return bar.High.GreaterThanOrEqual(price)
	case p.Intent.Type == OrderTypeStop && p.Intent.Direction == Short:
		return bar.Low.LessThanOrEqual(price)
	}
	return false
}

// ExecutionResult is the immutable record of one fill.
type ExecutionResult struct {
	OrderID         string
	ClientID        string
	Symbol          string
	Direction       Direction
	Type            OrderType
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	ExecutedAt      time.Time
	StopLoss        decimal.NullDecimal
	TakeProfit      decimal.NullDecimal
	Tags            []string
}

// Notional returns price × quantity.
func (e ExecutionResult) Notional() decimal.Decimal {
	return e.Price.Mul(e.Quantity)
}
