package client_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/marketgate/internal/logging"
	"github.com/aretw0/marketgate/pkg/client"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/gateway"
	"github.com/aretw0/marketgate/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGateway(t *testing.T, tools ...domain.Tool) (*gateway.Server, string) {
	t.Helper()
	reg := registry.NewRegistry()
	for _, tool := range tools {
		reg.Register(tool)
	}
	s := gateway.New(
		gateway.WithLogger(logging.NewNop()),
		gateway.WithToolRegistry(reg),
		gateway.WithServerInfo("gateway-under-test", "0.0.1"),
	)
	srv := httptest.NewServer(s.ToolHandler())
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func newClient(t *testing.T, url string, opts ...client.Option) *client.Client {
	t.Helper()
	base := []client.Option{
		client.WithLogger(logging.NewNop()),
		client.WithConnectBackoff(10*time.Millisecond, 1.5),
	}
	c := client.New(url, append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func staticTool(name, reply string) domain.Tool {
	return domain.Tool{
		Name: name,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return reply, nil
		},
	}
}

func TestClientHandshake(t *testing.T) {
	_, url := startGateway(t, staticTool("buy", "ok"), staticTool("sell", "ok"), staticTool("hold", "ok"))

	c := newClient(t, url)
	require.False(t, c.Ready())
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Ready())

	var names []string
	for _, tool := range c.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"buy", "sell", "hold"}, names)
}

func TestClientConnectExhaustsAttempts(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:9/ws", client.WithConnectAttempts(2))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, c.Ready())
}

func TestClientCallBeforeConnect(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:9/ws")

	_, err := c.Call(context.Background(), "tools/list", nil)
	require.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestClientCallTool(t *testing.T) {
	echo := domain.Tool{
		Name: "buy",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "bought " + args["symbol"].(string), nil
		},
	}
	_, url := startGateway(t, echo)

	c := newClient(t, url)
	require.NoError(t, c.Connect(context.Background()))

	content, err := c.CallTool(context.Background(), "buy", map[string]any{"symbol": "BTCUSD"})
	require.NoError(t, err)
	assert.Equal(t, "bought BTCUSD", content)
}

func TestClientCallToolSurfacesToolFailure(t *testing.T) {
	failing := domain.Tool{
		Name: "sell",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", assert.AnError
		},
	}
	_, url := startGateway(t, failing)

	c := newClient(t, url)
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.CallTool(context.Background(), "sell", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sell")
}

func TestClientCallUnknownMethod(t *testing.T) {
	_, url := startGateway(t)

	c := newClient(t, url)
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.Call(context.Background(), "portfolio/rebalance", nil)
	require.Error(t, err)

	var rpcErr *domain.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, domain.CodeMethodNotFound, rpcErr.Code)
}

func TestClientCallTimeout(t *testing.T) {
	slow := domain.Tool{
		Name: "hold",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(300 * time.Millisecond)
			return "held", nil
		},
	}
	_, url := startGateway(t, slow)

	c := newClient(t, url, client.WithCallTimeout(50*time.Millisecond))
	require.NoError(t, c.Connect(context.Background()))

	start := time.Now()
	_, err := c.CallTool(context.Background(), "hold", nil)
	require.ErrorIs(t, err, domain.ErrRequestTimeout)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestClientNotificationHandlersRunInOrder(t *testing.T) {
	s, url := startGateway(t)

	c := newClient(t, url)
	seen := make(chan int, 2)
	c.OnNotification("market_data", func(params json.RawMessage) { seen <- 1 })
	c.OnNotification("market_data", func(params json.RawMessage) { seen <- 2 })
	require.NoError(t, c.Connect(context.Background()))

	s.Broadcast("market_data", map[string]any{"symbol": "BTCUSD", "price": 61000.0})

	for want := 1; want <= 2; want++ {
		select {
		case got := <-seen:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("handler %d never ran", want)
		}
	}
}

func TestClientNotificationPayload(t *testing.T) {
	s, url := startGateway(t)

	c := newClient(t, url)
	payloads := make(chan json.RawMessage, 1)
	c.OnNotification("market_data", func(params json.RawMessage) { payloads <- params })
	require.NoError(t, c.Connect(context.Background()))

	s.BroadcastMarketData(context.Background(), domain.Message{
		Type:      domain.MsgMarketData,
		Data:      map[string]any{"symbol": "ETHUSD", "price": 3100.25},
		Timestamp: domain.Now(),
	})

	select {
	case raw := <-payloads:
		var got struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "ETHUSD", got.Data["symbol"])
	case <-time.After(2 * time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestClientCloseFailsPendingCalls(t *testing.T) {
	slow := domain.Tool{
		Name: "hold",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(time.Second)
			return "held", nil
		},
	}
	_, url := startGateway(t, slow)

	c := newClient(t, url)
	require.NoError(t, c.Connect(context.Background()))

	errs := make(chan error, 1)
	go func() {
		_, err := c.CallTool(context.Background(), "hold", nil)
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errs:
		require.ErrorIs(t, err, domain.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never failed")
	}
	assert.False(t, c.Ready())
}

func TestClientReconnectsAfterServerDrop(t *testing.T) {
	slow := domain.Tool{
		Name: "hold",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(time.Second)
			return "held", nil
		},
	}
	s, url := startGateway(t, slow, staticTool("buy", "ok"))

	c := newClient(t, url)
	require.NoError(t, c.Connect(context.Background()))

	errs := make(chan error, 1)
	go func() {
		_, err := c.CallTool(context.Background(), "hold", nil)
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)

	// Drop the socket from the server side; the listener stays up.
	s.Close()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, domain.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never failed")
	}
	assert.False(t, c.Ready())

	// The same client reconnects and redoes the whole handshake.
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Ready())
	assert.Len(t, c.Tools(), 2)

	content, err := c.CallTool(context.Background(), "buy", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
}

func TestClientNotifyProducesNoReply(t *testing.T) {
	_, url := startGateway(t, staticTool("buy", "ok"))

	c := newClient(t, url)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Notify("notifications/initialized", nil))

	// The connection still serves ordinary calls afterwards.
	content, err := c.CallTool(context.Background(), "buy", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
}
