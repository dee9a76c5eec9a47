package trading

import (
	"context"
	"testing"

	"github.com/aretw0/marketgate/internal/logging"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	action  domain.Action
	symbol  string
	amount  float64
	calls   int
	results []domain.DispatchResult
	err     error
}

func (f *fakeExecutor) ExecuteTrade(ctx context.Context, action domain.Action, symbol string, amount float64) ([]domain.DispatchResult, error) {
	f.calls++
	f.action = action
	f.symbol = symbol
	f.amount = amount
	return f.results, f.err
}

func newToolSet(exec *fakeExecutor) *ToolSet {
	return NewToolSet(exec, WithLogger(logging.NewNop()))
}

func TestToolsCanonicalOrder(t *testing.T) {
	ts := newToolSet(&fakeExecutor{})
	reg := registry.NewRegistry()
	ts.RegisterAll(reg)

	assert.Equal(t, []string{"buy", "sell", "hold"}, reg.Names())
	for _, tool := range reg.List() {
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema["type"])
		assert.NotNil(t, tool.Handler)
	}
}

func TestBuyDispatches(t *testing.T) {
	exec := &fakeExecutor{results: []domain.DispatchResult{
		{Peer: "a", Status: domain.DispatchSent},
		{Peer: "b", Status: domain.DispatchFailed, Error: "gone"},
	}}
	ts := newToolSet(exec)

	out, err := ts.buy(context.Background(), map[string]any{"symbol": "BTC", "amount": 0.5})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, exec.action)
	assert.Equal(t, "BTC", exec.symbol)
	assert.Equal(t, 0.5, exec.amount)
	assert.Contains(t, out, "bought 0.5 BTC")
	assert.Contains(t, out, "dispatched to 1 of 2 peers")
}

func TestSellDispatches(t *testing.T) {
	exec := &fakeExecutor{results: []domain.DispatchResult{{Peer: "a", Status: domain.DispatchSent}}}
	ts := newToolSet(exec)

	out, err := ts.sell(context.Background(), map[string]any{"symbol": "ETH", "amount": 2.0})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSell, exec.action)
	assert.Contains(t, out, "sold 2 ETH")
}

func TestBuySellValidation(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing symbol", map[string]any{"amount": 1.0}},
		{"missing amount", map[string]any{"symbol": "BTC"}},
		{"zero amount", map[string]any{"symbol": "BTC", "amount": 0.0}},
		{"negative amount", map[string]any{"symbol": "BTC", "amount": -1.0}},
		{"empty args", map[string]any{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			ts := newToolSet(exec)

			_, err := ts.buy(context.Background(), tc.args)
			assert.Error(t, err)
			_, err = ts.sell(context.Background(), tc.args)
			assert.Error(t, err)
			assert.Zero(t, exec.calls, "validation failures must not reach the executor")
		})
	}
}

func TestHoldDefaultsReason(t *testing.T) {
	exec := &fakeExecutor{results: []domain.DispatchResult{{Peer: "a", Status: domain.DispatchSent}}}
	ts := newToolSet(exec)

	out, err := ts.hold(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, exec.action)
	assert.Empty(t, exec.symbol)
	assert.Zero(t, exec.amount)
	assert.Contains(t, out, "No specific reason provided")
}

func TestHoldCarriesReason(t *testing.T) {
	exec := &fakeExecutor{results: []domain.DispatchResult{{Peer: "a", Status: domain.DispatchSent}}}
	ts := newToolSet(exec)

	out, err := ts.hold(context.Background(), map[string]any{"reason": "sideways market"})
	require.NoError(t, err)
	assert.Contains(t, out, "sideways market")
}

func TestExecutorFailurePropagates(t *testing.T) {
	exec := &fakeExecutor{err: domain.ErrNoExecutionPeers}
	ts := newToolSet(exec)

	_, err := ts.buy(context.Background(), map[string]any{"symbol": "BTC", "amount": 1.0})
	assert.ErrorIs(t, err, domain.ErrNoExecutionPeers)

	_, err = ts.hold(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoExecutionPeers)
}
