package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/marketgate/internal/logging"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/gateway"
	"github.com/aretw0/marketgate/pkg/registry"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcFrame is the wire shape tests read back, covering replies and
// notifications alike.
type rpcFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  map[string]any  `json:"params"`
	Result  map[string]any  `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func startToolPort(t *testing.T, s *gateway.Server) string {
	t.Helper()
	srv := httptest.NewServer(s.ToolHandler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(frame))
}

func readFrame(t *testing.T, ws *websocket.Conn) rpcFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f rpcFrame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

// roundTrip drives one initialize exchange, which also guarantees the
// server has registered the connection before the test proceeds.
func roundTrip(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	send(t, ws, map[string]any{"jsonrpc": "2.0", "id": "sync", "method": "initialize"})
	f := readFrame(t, ws)
	require.Nil(t, f.Error)
}

func echoTool(name string) domain.Tool {
	return domain.Tool{
		Name:        name,
		Description: "echoes its symbol argument",
		InputSchema: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sym, _ := args["symbol"].(string)
			return "echo:" + sym, nil
		},
	}
}

func TestToolPortInitialize(t *testing.T) {
	s := gateway.New(
		gateway.WithLogger(logging.NewNop()),
		gateway.WithServerInfo("marketgate-test", "1.2.3"),
	)
	ws := dialWS(t, startToolPort(t, s))

	send(t, ws, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]any{}})
	f := readFrame(t, ws)

	require.Nil(t, f.Error)
	assert.Equal(t, "2.0", f.JSONRPC)
	assert.JSONEq(t, `1`, string(f.ID))
	assert.Equal(t, "2024-11-05", f.Result["protocolVersion"])
	info, ok := f.Result["serverInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "marketgate-test", info["name"])
	assert.Equal(t, "1.2.3", info["version"])
}

func TestToolPortToolsListKeepsRegistrationOrder(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register(echoTool("charlie"))
	reg.Register(echoTool("alpha"))
	reg.Register(echoTool("bravo"))

	s := gateway.New(gateway.WithLogger(logging.NewNop()), gateway.WithToolRegistry(reg))
	ws := dialWS(t, startToolPort(t, s))

	send(t, ws, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "tools/list"})
	f := readFrame(t, ws)

	require.Nil(t, f.Error)
	tools, ok := f.Result["tools"].([]any)
	require.True(t, ok)
	var names []string
	for _, raw := range tools {
		tool := raw.(map[string]any)
		names = append(names, tool["name"].(string))
		assert.Contains(t, tool, "inputSchema")
	}
	assert.Equal(t, []string{"charlie", "alpha", "bravo"}, names)
}

func TestToolPortToolsCall(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register(echoTool("buy"))
	reg.Register(domain.Tool{
		Name: "sell",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("order book unavailable")
		},
	})

	s := gateway.New(gateway.WithLogger(logging.NewNop()), gateway.WithToolRegistry(reg))
	ws := dialWS(t, startToolPort(t, s))

	t.Run("success", func(t *testing.T) {
		send(t, ws, map[string]any{
			"jsonrpc": "2.0", "id": 10, "method": "tools/call",
			"params": map[string]any{"name": "buy", "arguments": map[string]any{"symbol": "BTCUSD"}},
		})
		f := readFrame(t, ws)
		require.Nil(t, f.Error)
		assert.Equal(t, "echo:BTCUSD", f.Result["content"])
		assert.Equal(t, false, f.Result["isError"])
	})

	t.Run("handler failure is a result, not a protocol error", func(t *testing.T) {
		send(t, ws, map[string]any{
			"jsonrpc": "2.0", "id": 11, "method": "tools/call",
			"params": map[string]any{"name": "sell", "arguments": map[string]any{}},
		})
		f := readFrame(t, ws)
		require.Nil(t, f.Error)
		assert.Equal(t, "order book unavailable", f.Result["content"])
		assert.Equal(t, true, f.Result["isError"])
	})

	t.Run("unknown tool is a protocol error", func(t *testing.T) {
		send(t, ws, map[string]any{
			"jsonrpc": "2.0", "id": 12, "method": "tools/call",
			"params": map[string]any{"name": "short", "arguments": map[string]any{}},
		})
		f := readFrame(t, ws)
		require.NotNil(t, f.Error)
		assert.Equal(t, domain.CodeMethodNotFound, f.Error.Code)
		assert.Equal(t, "Tool not found: short", f.Error.Message)
		assert.JSONEq(t, `12`, string(f.ID))
	})
}

func TestToolPortMalformedFrameKeepsConnectionOpen(t *testing.T) {
	s := gateway.New(gateway.WithLogger(logging.NewNop()))
	ws := dialWS(t, startToolPort(t, s))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{this is not json")))
	f := readFrame(t, ws)
	require.NotNil(t, f.Error)
	assert.Equal(t, domain.CodeParseError, f.Error.Code)
	assert.JSONEq(t, `null`, string(f.ID))

	// The connection survives and the next request still works.
	roundTrip(t, ws)
}

func TestToolPortUnknownMethod(t *testing.T) {
	s := gateway.New(gateway.WithLogger(logging.NewNop()))
	ws := dialWS(t, startToolPort(t, s))

	send(t, ws, map[string]any{"jsonrpc": "2.0", "id": 7, "method": "portfolio/rebalance"})
	f := readFrame(t, ws)
	require.NotNil(t, f.Error)
	assert.Equal(t, domain.CodeMethodNotFound, f.Error.Code)
	assert.Equal(t, "Method not found: portfolio/rebalance", f.Error.Message)
}

func TestToolPortNotificationsProduceNoReply(t *testing.T) {
	s := gateway.New(gateway.WithLogger(logging.NewNop()))
	ws := dialWS(t, startToolPort(t, s))

	// Both a known and an unknown notification go unanswered; the reply
	// that does arrive belongs to the id-carrying request sent after them.
	send(t, ws, map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"})
	send(t, ws, map[string]any{"jsonrpc": "2.0", "method": "notifications/cancelled"})
	send(t, ws, map[string]any{"jsonrpc": "2.0", "id": 99, "method": "initialize"})

	f := readFrame(t, ws)
	require.Nil(t, f.Error)
	assert.JSONEq(t, `99`, string(f.ID))
}

func TestToolPortInitializedAckWhenRequested(t *testing.T) {
	s := gateway.New(gateway.WithLogger(logging.NewNop()))
	ws := dialWS(t, startToolPort(t, s))

	send(t, ws, map[string]any{"jsonrpc": "2.0", "id": 3, "method": "notifications/initialized"})
	f := readFrame(t, ws)
	require.Nil(t, f.Error)
	assert.Empty(t, f.Result)
	assert.JSONEq(t, `3`, string(f.ID))
}

func TestToolPortAgentResponse(t *testing.T) {
	t.Run("without forwarder", func(t *testing.T) {
		s := gateway.New(gateway.WithLogger(logging.NewNop()))
		ws := dialWS(t, startToolPort(t, s))

		send(t, ws, map[string]any{
			"jsonrpc": "2.0", "id": 20, "method": "agent_response",
			"params": map[string]any{"id": "req-1", "result": "hold"},
		})
		f := readFrame(t, ws)
		require.Nil(t, f.Error)
		assert.Equal(t, false, f.Result["forwarded"])
	})

	t.Run("with forwarder", func(t *testing.T) {
		s := gateway.New(gateway.WithLogger(logging.NewNop()))
		got := make(chan map[string]any, 1)
		s.SetForwarder(func(params map[string]any) { got <- params })
		ws := dialWS(t, startToolPort(t, s))

		send(t, ws, map[string]any{
			"jsonrpc": "2.0", "id": 21, "method": "agent_response",
			"params": map[string]any{"id": "req-2", "result": "buy"},
		})
		f := readFrame(t, ws)
		require.Nil(t, f.Error)
		assert.Equal(t, true, f.Result["forwarded"])

		select {
		case params := <-got:
			assert.Equal(t, "req-2", params["id"])
		case <-time.After(time.Second):
			t.Fatal("forwarder never invoked")
		}
	})
}

func TestToolPortDispatchPanicBecomesInternalError(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register(domain.Tool{
		Name: "hold",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			panic("position book corrupted")
		},
	})

	s := gateway.New(gateway.WithLogger(logging.NewNop()), gateway.WithToolRegistry(reg))
	ws := dialWS(t, startToolPort(t, s))

	send(t, ws, map[string]any{
		"jsonrpc": "2.0", "id": 42, "method": "tools/call",
		"params": map[string]any{"name": "hold", "arguments": map[string]any{}},
	})
	f := readFrame(t, ws)
	require.NotNil(t, f.Error)
	assert.Equal(t, domain.CodeInternalError, f.Error.Code)
	assert.Contains(t, f.Error.Message, "position book corrupted")
	assert.JSONEq(t, `42`, string(f.ID))

	roundTrip(t, ws)
}

func TestToolPortBroadcastReachesAllPeers(t *testing.T) {
	s := gateway.New(gateway.WithLogger(logging.NewNop()))
	url := startToolPort(t, s)

	first := dialWS(t, url)
	second := dialWS(t, url)
	roundTrip(t, first)
	roundTrip(t, second)

	s.Broadcast("market_data", map[string]any{"symbol": "ETHUSD", "price": 3200.5})

	for _, ws := range []*websocket.Conn{first, second} {
		f := readFrame(t, ws)
		assert.Equal(t, "market_data", f.Method)
		assert.Empty(t, f.ID)
		assert.Equal(t, "ETHUSD", f.Params["symbol"])
	}
}

func TestToolPortRepliesAreNotBroadcast(t *testing.T) {
	s := gateway.New(gateway.WithLogger(logging.NewNop()))
	url := startToolPort(t, s)

	caller := dialWS(t, url)
	bystander := dialWS(t, url)
	roundTrip(t, caller)
	roundTrip(t, bystander)

	send(t, caller, map[string]any{"jsonrpc": "2.0", "id": 5, "method": "tools/list"})
	f := readFrame(t, caller)
	require.Nil(t, f.Error)
	assert.JSONEq(t, `5`, string(f.ID))

	// The bystander sees nothing.
	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var stray json.RawMessage
	err := bystander.ReadJSON(&stray)
	require.Error(t, err, "reply leaked to a peer that never asked: %s", stray)
}

func TestToolPortStringRequestID(t *testing.T) {
	s := gateway.New(gateway.WithLogger(logging.NewNop()))
	ws := dialWS(t, startToolPort(t, s))

	send(t, ws, map[string]any{"jsonrpc": "2.0", "id": "init-abc", "method": "initialize"})
	f := readFrame(t, ws)
	require.Nil(t, f.Error)
	assert.JSONEq(t, `"init-abc"`, string(f.ID))
}
