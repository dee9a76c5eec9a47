package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/peers"
	"github.com/mitchellh/mapstructure"
)

// execHandler consumes one typed execution-port message.
type execHandler func(ctx context.Context, conn *peers.Conn, msg domain.Message)

// tradeCommandFrame is the outbound fan-out envelope. The command rides
// in data, forwarded verbatim to every peer.
type tradeCommandFrame struct {
	Type      string              `json:"type"`
	Data      domain.TradeCommand `json:"data"`
	Timestamp float64             `json:"timestamp"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Server) handleExecWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("execport: upgrade failed", "err", err)
		return
	}

	conn := peers.NewConn(ws)
	s.execPeers.Add(conn)
	defer func() {
		s.execPeers.Remove(conn)
		_ = conn.Close()
	}()

	greeting := domain.Message{
		Type:      domain.MsgConnectionEstablished,
		Message:   "Connected to " + s.name,
		Timestamp: domain.Now(),
	}
	if err := conn.WriteJSON(greeting); err != nil {
		s.log.Warn("execport: greeting failed", "peer", conn.Label(), "err", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("execport: read loop ended", "peer", conn.Label(), "err", err)
			return
		}
		s.dispatchExec(r.Context(), conn, data)
	}
}

func (s *Server) dispatchExec(ctx context.Context, conn *peers.Conn, data []byte) {
	if len(data) == 0 || len(data) > domain.MaxMessageSize {
		s.log.Warn("execport: invalid message size", "peer", conn.Label(), "bytes", len(data))
		s.sendError(conn, "Invalid message size")
		return
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.metrics.countMessage("execution", "malformed")
		s.sendError(conn, "Invalid JSON format")
		return
	}
	if msg.Type == "" {
		s.metrics.countMessage("execution", "malformed")
		s.sendError(conn, "Message must include 'type' field")
		return
	}

	s.metrics.countMessage("execution", msg.Type)

	handler, ok := s.execHandlers[msg.Type]
	if !ok {
		s.log.Warn("execport: unknown message type", "peer", conn.Label(), "type", msg.Type)
		return
	}
	handler(ctx, conn, msg)
}

func (s *Server) handleMarketData(ctx context.Context, conn *peers.Conn, msg domain.Message) {
	if s.onMarketData == nil {
		s.log.Debug("execport: market data dropped, no handler registered")
		return
	}
	s.onMarketData(ctx, msg)
}

func (s *Server) handlePortfolioUpdate(ctx context.Context, conn *peers.Conn, msg domain.Message) {
	var p domain.Portfolio
	if err := mapstructure.Decode(msg.Data, &p); err != nil {
		s.log.Warn("execport: undecodable portfolio update", "peer", conn.Label(), "err", err)
		return
	}
	if p.UpdatedAt == 0 {
		p.UpdatedAt = msg.Timestamp
	}
	if err := s.store.Save(ctx, snapshotKey, &p); err != nil {
		s.log.Error("execport: portfolio snapshot save failed", "err", err)
		return
	}
	s.log.Debug("execport: portfolio snapshot stored", "value", p.Value)
}

func (s *Server) handleTradeConfirmation(ctx context.Context, conn *peers.Conn, msg domain.Message) {
	var tc domain.TradeConfirmation
	if err := mapstructure.Decode(msg.Data, &tc); err != nil {
		s.log.Warn("execport: undecodable trade confirmation", "peer", conn.Label(), "err", err)
		return
	}
	s.log.Info("execport: trade confirmed",
		"peer", conn.Label(), "action", tc.Action, "symbol", tc.Symbol, "amount", tc.Amount, "status", tc.Status)
}

func (s *Server) handlePing(ctx context.Context, conn *peers.Conn, msg domain.Message) {
	pong := domain.Message{Type: domain.MsgPong, Timestamp: domain.Now()}
	if err := conn.WriteJSON(pong); err != nil {
		s.log.Warn("execport: pong failed", "peer", conn.Label(), "err", err)
	}
}

func (s *Server) sendError(conn *peers.Conn, text string) {
	frame := errorFrame{Type: domain.MsgError, Message: text}
	if err := conn.WriteJSON(frame); err != nil {
		s.log.Warn("execport: error reply failed", "peer", conn.Label(), "err", err)
	}
}

// ExecuteTrade fans a trade command out to every execution peer. It fails
// before sending anything when the pool is empty; afterwards, individual
// send failures remove that peer without failing the call.
func (s *Server) ExecuteTrade(ctx context.Context, action domain.Action, symbol string, amount float64) ([]domain.DispatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := s.execPeers.Snapshot()
	if len(snapshot) == 0 {
		return nil, domain.ErrNoExecutionPeers
	}

	frame := tradeCommandFrame{
		Type: domain.MsgTradeCommand,
		Data: domain.TradeCommand{
			Action:    action,
			Symbol:    symbol,
			Amount:    amount,
			Timestamp: domain.Now(),
		},
		Timestamp: domain.Now(),
	}

	results := make([]domain.DispatchResult, 0, len(snapshot))
	for _, peer := range snapshot {
		if err := peer.WriteJSON(frame); err != nil {
			s.log.Warn("execport: trade send failed", "peer", peer.Label(), "err", err)
			s.execPeers.Remove(peer)
			_ = peer.Close()
			s.metrics.countTrade(action, domain.DispatchFailed)
			results = append(results, domain.DispatchResult{
				Peer:   peer.Label(),
				Status: domain.DispatchFailed,
				Error:  err.Error(),
			})
			continue
		}
		s.metrics.countTrade(action, domain.DispatchSent)
		results = append(results, domain.DispatchResult{Peer: peer.Label(), Status: domain.DispatchSent})
	}

	s.log.Info("execport: trade dispatched", "action", action, "symbol", symbol, "peers", len(results))
	return results, nil
}

// BroadcastToExecution pushes a typed message to every execution peer,
// used by the agent_response forwarder.
func (s *Server) BroadcastToExecution(msg domain.Message) {
	_, failed := s.execPeers.Broadcast(msg)
	s.metrics.countBroadcast("execution", failed)
}
