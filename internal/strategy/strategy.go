// Package strategy defines the interface trading strategies implement and
// a Registry that builds fresh instances by name.
package strategy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/indicator"
	"github.com/efreitasn/barreplay/internal/series"
)

// Orders is the order surface a strategy trades through.
type Orders interface {
	QueueEntry(intent domain.TradeIntent) error
	QueueExit(symbol string, intent domain.TradeIntent) error
	ClosePosition(symbol string, tags ...string) error
	CancelPendingOrder(clientID string) bool
	Position(symbol string) (domain.Position, bool)
	PendingOrders() []domain.PendingOrder
	Cash() decimal.Decimal
}

// Context is what a strategy receives once per symbol before the bar loop.
type Context struct {
	Symbol     string
	Cursor     *series.Cursor
	Indicators *indicator.Manager
	Orders     Orders
	Logger     *slog.Logger
}

// Strategy is the interface all trading strategies implement. The
// backtester builds one instance per symbol, calls Configure and
// Initialize once, then OnBar once per primary bar. Intents queued from
// OnBar execute on the next bar.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// Configure reads parameters into typed settings and validates them.
	Configure(params Params) error

	// Initialize declares indicators and keeps the context.
	Initialize(ctx *Context) error

	// OnBar is called with the view positioned at the current bar.
	OnBar(view *series.View) error
}

// TimeframeDeclarer is implemented by strategies that read secondary
// timeframes. The backtester resamples primary bars into each of them.
type TimeframeDeclarer interface {
	Timeframes() []series.Timeframe
}

// Factory returns a new, unconfigured strategy.
type Factory func() Strategy

// Registry maps strategy names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds a fresh instance of the named strategy.
func (r *Registry) New(name string) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, name)
	}
	return f(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := lo.Keys(r.factories)
	sort.Strings(names)
	return names
}
