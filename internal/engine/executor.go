package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/commission"
	"github.com/efreitasn/barreplay/internal/domain"
)

// FillPolicy picks the bar field market orders fill at.
type FillPolicy string

const (
	FillClose FillPolicy = "close"
	FillOpen  FillPolicy = "open"
)

// ParseFillPolicy accepts "close" or "open"; empty means close.
func ParseFillPolicy(s string) (FillPolicy, error) {
	switch p := FillPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FillClose, nil
	case FillClose, FillOpen:
		return p, nil
	}
	return "", fmt.Errorf("market fill must be 'close' or 'open', got %q", s)
}

// Price returns the reference price of bar under p.
func (p FillPolicy) Price(bar domain.Bar) decimal.Decimal {
	if p == FillOpen {
		return bar.Open
	}
	return bar.Close
}

// Executor turns an intent and the bar it executes on into a fill. It
// never reads ledger state.
type Executor struct {
	model commission.Model
	asset string
	ids   *IDGenerator
}

// NewExecutor creates an Executor charging fees with model in asset.
func NewExecutor(model commission.Model, asset string, ids *IDGenerator) *Executor {
	return &Executor{model: model, asset: asset, ids: ids}
}

// Execute fills intent against bar. Market intents fill at reference;
// limit and stop intents fill at their trigger price.
func (e *Executor) Execute(intent domain.TradeIntent, bar domain.Bar, reference decimal.Decimal) (domain.ExecutionResult, error) {
	if !intent.Quantity.IsPositive() {
		return domain.ExecutionResult{}, domain.ErrInvalidQuantity
	}

	price := reference
	if intent.IsPending() {
		p, ok := intent.TriggerPrice()
		if !ok {
			return domain.ExecutionResult{}, domain.ErrMissingPrice
		}
		price = p
	}
	if !price.IsPositive() {
		return domain.ExecutionResult{}, domain.ErrInvalidPrice
	}

	return domain.ExecutionResult{
		OrderID:         e.ids.Next(),
		ClientID:        intent.ClientID,
		Symbol:          intent.Symbol,
		Direction:       intent.Direction,
		Type:            intent.Type,
		Price:           price,
		Quantity:        intent.Quantity,
		Commission:      e.model.Calculate(intent.Quantity, price),
		CommissionAsset: e.asset,
		ExecutedAt:      bar.Time,
		StopLoss:        intent.StopLoss,
		TakeProfit:      intent.TakeProfit,
		Tags:            intent.Tags,
	}, nil
}
