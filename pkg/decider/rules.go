// Package decider chooses a trade action for one market event. Rules is
// the deterministic threshold strategy; OpenAI delegates the choice to a
// chat model behind the same interface.
package decider

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/marketgate/pkg/domain"
)

// Rules is a stateful momentum strategy: it compares each price to the
// previous observation for the same symbol and trades when the move
// exceeds the threshold.
type Rules struct {
	threshold float64
	amount    float64

	mu   sync.Mutex
	last map[string]float64
}

// RulesOption configures the rules strategy.
type RulesOption func(*Rules)

// WithThreshold sets the relative price move that triggers a trade.
// The default is 0.02, i.e. two percent.
func WithThreshold(pct float64) RulesOption {
	return func(r *Rules) {
		if pct > 0 {
			r.threshold = pct
		}
	}
}

// WithTradeAmount sets the quantity attached to buy and sell decisions.
func WithTradeAmount(amount float64) RulesOption {
	return func(r *Rules) {
		if amount > 0 {
			r.amount = amount
		}
	}
}

// NewRules creates the threshold strategy.
func NewRules(opts ...RulesOption) *Rules {
	r := &Rules{
		threshold: 0.02,
		amount:    0.1,
		last:      map[string]float64{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decide buys into drops and sells into rallies beyond the threshold,
// holding otherwise. The first observation per symbol always holds.
func (r *Rules) Decide(ctx context.Context, market map[string]any) (domain.Decision, error) {
	symbol, price, err := marketPoint(market)
	if err != nil {
		return domain.Decision{}, err
	}

	r.mu.Lock()
	prev, seen := r.last[symbol]
	r.last[symbol] = price
	r.mu.Unlock()

	if !seen {
		return domain.Decision{
			Action: domain.ActionHold,
			Symbol: symbol,
			Reason: fmt.Sprintf("first observation for %s, building history", symbol),
		}, nil
	}

	change := (price - prev) / prev
	switch {
	case change <= -r.threshold:
		return domain.Decision{
			Action: domain.ActionBuy,
			Symbol: symbol,
			Amount: r.amount,
			Reason: fmt.Sprintf("price moved %+.2f%%, buying the dip", change*100),
		}, nil
	case change >= r.threshold:
		return domain.Decision{
			Action: domain.ActionSell,
			Symbol: symbol,
			Amount: r.amount,
			Reason: fmt.Sprintf("price moved %+.2f%%, taking profit", change*100),
		}, nil
	default:
		return domain.Decision{
			Action: domain.ActionHold,
			Symbol: symbol,
			Reason: fmt.Sprintf("price moved %+.2f%%, within threshold", change*100),
		}, nil
	}
}

// marketPoint digs the symbol and price out of a market payload, looking
// inside a data member first and at the top level as a fallback.
func marketPoint(market map[string]any) (string, float64, error) {
	fields := market
	if data, ok := market["data"].(map[string]any); ok {
		fields = data
	}

	symbol, _ := fields["symbol"].(string)
	if symbol == "" {
		return "", 0, fmt.Errorf("market payload has no symbol")
	}

	var price float64
	switch p := fields["price"].(type) {
	case float64:
		price = p
	case int:
		price = float64(p)
	default:
		return "", 0, fmt.Errorf("market payload for %s has no numeric price", symbol)
	}
	if price <= 0 {
		return "", 0, fmt.Errorf("market payload for %s has non-positive price %v", symbol, price)
	}
	return symbol, price, nil
}
