// Package agent is a compute peer: it dials a bridge, receives market
// events and answers each with a trade decision for the bridge to relay.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/marketgate/pkg/bridge"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/peers"
	"github.com/aretw0/marketgate/pkg/ports"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// Agent consumes market envelopes from one bridge connection and writes
// back one agent_response per envelope.
type Agent struct {
	url     string
	log     *slog.Logger
	decider ports.Decider
	dialer  *websocket.Dialer

	interval   time.Duration
	multiplier float64
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// WithReconnectBackoff tunes the delay between reconnect attempts.
func WithReconnectBackoff(initial time.Duration, multiplier float64) Option {
	return func(a *Agent) {
		if initial > 0 {
			a.interval = initial
		}
		if multiplier > 1 {
			a.multiplier = multiplier
		}
	}
}

// New creates an agent for the given bridge ws:// URL.
func New(url string, d ports.Decider, opts ...Option) *Agent {
	a := &Agent{
		url:        url,
		log:        slog.Default(),
		decider:    d,
		dialer:     websocket.DefaultDialer,
		interval:   2 * time.Second,
		multiplier: 1.5,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run keeps a bridge session alive until the context ends, reconnecting
// with growing delays after every drop.
func (a *Agent) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.interval
	bo.Multiplier = a.multiplier
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		connected, err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		a.log.Warn("agent: bridge session ended", "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection's read loop. The connected return tells the
// caller whether the dial itself succeeded, so backoff can reset.
func (a *Agent) session(ctx context.Context) (bool, error) {
	ws, _, err := a.dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return false, err
	}

	conn := peers.NewConn(ws)
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	a.log.Info("agent: connected to bridge", "url", a.url)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		a.handle(ctx, conn, data)
	}
}

func (a *Agent) handle(ctx context.Context, conn *peers.Conn, data []byte) {
	var env struct {
		ID     string         `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		a.log.Warn("agent: undecodable envelope dropped", "err", err)
		return
	}
	if env.Method != bridge.MethodProcessMarketData {
		a.log.Debug("agent: unexpected method dropped", "method", env.Method)
		return
	}

	result := a.decide(ctx, env.Params)
	reply := map[string]any{
		"type":   "agent_response",
		"id":     env.ID,
		"result": result,
	}
	if err := conn.WriteJSON(reply); err != nil {
		a.log.Warn("agent: reply write failed", "id", env.ID, "err", err)
	}
}

// decide maps one market payload to the response body, folding decision
// failures into a tool-less answer instead of raising them.
func (a *Agent) decide(ctx context.Context, market map[string]any) map[string]any {
	dec, err := a.decider.Decide(ctx, market)
	if err != nil {
		a.log.Warn("agent: decision failed", "err", err)
		return map[string]any{"response": fmt.Sprintf("decision failed: %v", err)}
	}

	a.log.Info("agent: decision", "action", dec.Action, "symbol", dec.Symbol, "amount", dec.Amount, "reason", dec.Reason)

	args := map[string]any{"reason": dec.Reason}
	if dec.Action != domain.ActionHold {
		args["symbol"] = dec.Symbol
		args["amount"] = dec.Amount
	}
	return map[string]any{
		"response": dec.Reason,
		"tool_call": domain.ToolCall{
			Name:      string(dec.Action),
			Arguments: args,
		},
	}
}
