// Package trading defines the trading tool set the gateway exposes:
// buy, sell and hold, each relaying through the execution pool.
package trading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/ports"
	"github.com/aretw0/marketgate/pkg/registry"
	"github.com/mitchellh/mapstructure"
)

// ToolSet wires the trading tools to an execution pool.
type ToolSet struct {
	executor ports.TradeExecutor
	log      *slog.Logger
}

// Option configures a ToolSet.
type Option func(*ToolSet)

// WithLogger sets the logger used for trade dispatch events.
func WithLogger(log *slog.Logger) Option {
	return func(t *ToolSet) {
		if log != nil {
			t.log = log
		}
	}
}

// NewToolSet creates the trading tools bound to an executor.
func NewToolSet(executor ports.TradeExecutor, opts ...Option) *ToolSet {
	t := &ToolSet{
		executor: executor,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tools returns the tool definitions in their canonical registration
// order: buy, sell, hold.
func (t *ToolSet) Tools() []domain.Tool {
	return []domain.Tool{
		{
			Name:        "buy",
			Description: "Execute a buy order for a traded symbol",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"symbol": map[string]any{
						"type":        "string",
						"description": "The symbol to buy (e.g., BTC, ETH)",
					},
					"amount": map[string]any{
						"type":        "number",
						"description": "The amount to buy",
					},
				},
				"required": []string{"symbol", "amount"},
			},
			Handler: t.buy,
		},
		{
			Name:        "sell",
			Description: "Execute a sell order for a traded symbol",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"symbol": map[string]any{
						"type":        "string",
						"description": "The symbol to sell (e.g., BTC, ETH)",
					},
					"amount": map[string]any{
						"type":        "number",
						"description": "The amount to sell",
					},
				},
				"required": []string{"symbol", "amount"},
			},
			Handler: t.sell,
		},
		{
			Name:        "hold",
			Description: "Hold the current position without taking any action",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "The reasoning for holding the position",
					},
				},
				"required": []string{},
			},
			Handler: t.hold,
		},
	}
}

// RegisterAll registers the tool set on reg, preserving canonical order.
func (t *ToolSet) RegisterAll(reg *registry.Registry) {
	for _, tool := range t.Tools() {
		reg.Register(tool)
	}
}

type tradeArgs struct {
	Symbol string  `mapstructure:"symbol"`
	Amount float64 `mapstructure:"amount"`
	Reason string  `mapstructure:"reason"`
}

func decodeArgs(raw map[string]any) (tradeArgs, error) {
	var args tradeArgs
	if err := mapstructure.Decode(raw, &args); err != nil {
		return args, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}

func (t *ToolSet) buy(ctx context.Context, raw map[string]any) (string, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return "", err
	}
	if args.Symbol == "" || args.Amount <= 0 {
		return "", fmt.Errorf("missing required parameters: symbol, amount")
	}

	results, err := t.executor.ExecuteTrade(ctx, domain.ActionBuy, args.Symbol, args.Amount)
	if err != nil {
		return "", fmt.Errorf("buy order failed: %w", err)
	}
	return fmt.Sprintf("Successfully bought %v %s (%s)", args.Amount, args.Symbol, summarize(results)), nil
}

func (t *ToolSet) sell(ctx context.Context, raw map[string]any) (string, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return "", err
	}
	if args.Symbol == "" || args.Amount <= 0 {
		return "", fmt.Errorf("missing required parameters: symbol, amount")
	}

	results, err := t.executor.ExecuteTrade(ctx, domain.ActionSell, args.Symbol, args.Amount)
	if err != nil {
		return "", fmt.Errorf("sell order failed: %w", err)
	}
	return fmt.Sprintf("Successfully sold %v %s (%s)", args.Amount, args.Symbol, summarize(results)), nil
}

func (t *ToolSet) hold(ctx context.Context, raw map[string]any) (string, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return "", err
	}
	if args.Reason == "" {
		args.Reason = "No specific reason provided"
	}

	results, err := t.executor.ExecuteTrade(ctx, domain.ActionHold, "", 0)
	if err != nil {
		return "", fmt.Errorf("hold order failed: %w", err)
	}
	t.log.Debug("trading: position held", "reason", args.Reason)
	return fmt.Sprintf("Successfully held position. Reason: %s (%s)", args.Reason, summarize(results)), nil
}

func summarize(results []domain.DispatchResult) string {
	sent := 0
	for _, r := range results {
		if r.Status == domain.DispatchSent {
			sent++
		}
	}
	return fmt.Sprintf("dispatched to %d of %d peers", sent, len(results))
}
