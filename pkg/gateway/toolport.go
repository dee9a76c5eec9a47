package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/peers"
)

func (s *Server) handleToolWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("toolport: upgrade failed", "err", err)
		return
	}

	conn := peers.NewConn(ws)
	s.toolPeers.Add(conn)
	defer func() {
		s.toolPeers.Remove(conn)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("toolport: read loop ended", "peer", conn.Label(), "err", err)
			return
		}
		s.dispatchTool(r.Context(), conn, data)
	}
}

// dispatchTool decodes one tool-port frame and sends at most one reply:
// exactly one for requests carrying an id, none for notifications.
func (s *Server) dispatchTool(ctx context.Context, conn *peers.Conn, data []byte) {
	var req domain.Request
	if err := json.Unmarshal(data, &req); err != nil {
		// A malformed frame earns an error reply, not a hangup.
		s.metrics.countMessage("tool", "malformed")
		s.reply(conn, domain.NewErrorReply(domain.NullID, domain.CodeParseError, "Parse error"))
		return
	}

	s.metrics.countMessage("tool", req.Method)
	timer := s.metrics.startRequest(req.Method)
	resp := s.handleRequest(ctx, &req)
	timer()

	if resp != nil {
		s.reply(conn, *resp)
	}
}

// handleRequest runs the method dispatch state machine. It never lets a
// failure escape without a well-formed reply for the originating id.
func (s *Server) handleRequest(ctx context.Context, req *domain.Request) (resp *domain.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("toolport: dispatch panic", "method", req.Method, "panic", rec)
			id := req.ID
			if len(id) == 0 {
				id = domain.NullID
			}
			r := domain.NewErrorReply(id, domain.CodeInternalError, fmt.Sprintf("Internal error: %v", rec))
			resp = &r
		}
	}()

	isNote := req.IsNotification()

	var result any
	switch req.Method {
	case "initialize":
		result = map[string]any{
			"protocolVersion": domain.ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    s.name,
				"version": s.version,
			},
		}

	case "tools/list":
		result = map[string]any{"tools": s.tools.List()}

	case "tools/call":
		return s.handleToolCall(ctx, req, isNote)

	case "notifications/initialized":
		// Handshake completion. Empty acknowledgement when the peer asked
		// for one by including an id.
		result = map[string]any{}

	case "agent_response":
		result = s.handleAgentResponse(req)

	default:
		if isNote {
			s.log.Warn("toolport: unknown notification dropped", "method", req.Method)
			return nil
		}
		r := domain.NewErrorReply(req.ID, domain.CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
		return &r
	}

	if isNote {
		return nil
	}
	r := domain.NewReply(req.ID, result)
	return &r
}

func (s *Server) handleToolCall(ctx context.Context, req *domain.Request, isNote bool) *domain.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.log.Warn("toolport: undecodable tools/call params", "err", err)
		}
	}

	content, err := s.tools.Execute(ctx, params.Name, params.Arguments)

	if isNote {
		// A fire-and-forget invocation gets no reply either way.
		if err != nil {
			s.log.Warn("toolport: notification tools/call failed", "tool", params.Name, "err", err)
		}
		return nil
	}

	switch {
	case err == nil:
		r := domain.NewReply(req.ID, domain.ToolResult{Content: content})
		return &r
	case errors.Is(err, domain.ErrToolNotFound):
		// Unknown names are a protocol fault, never a domain result.
		r := domain.NewErrorReply(req.ID, domain.CodeMethodNotFound, fmt.Sprintf("Tool not found: %s", params.Name))
		return &r
	default:
		// Handler failures are domain results, never protocol faults.
		r := domain.NewReply(req.ID, domain.ToolResult{Content: err.Error(), IsError: true})
		return &r
	}
}

func (s *Server) handleAgentResponse(req *domain.Request) map[string]any {
	var params map[string]any
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.log.Warn("toolport: undecodable agent_response params", "err", err)
		}
	}

	if s.forward == nil {
		s.log.Info("toolport: agent_response dropped, no forwarder configured")
		return map[string]any{"forwarded": false}
	}
	s.forward(params)
	return map[string]any{"forwarded": true}
}

// Broadcast pushes an id-less notification to every tool-port peer.
func (s *Server) Broadcast(method string, params any) {
	frame := domain.NewNotification(method, params)
	sent, failed := s.toolPeers.Broadcast(frame)
	s.metrics.countBroadcast("tool", failed)
	s.log.Debug("toolport: broadcast", "method", method, "sent", sent, "failed", failed)
}

// BroadcastMarketData is the stock market-data handler: it fans the
// execution pool's event out to every tool-port peer unchanged.
func (s *Server) BroadcastMarketData(ctx context.Context, msg domain.Message) {
	s.Broadcast(domain.MsgMarketData, map[string]any{
		"type":      domain.MsgMarketData,
		"data":      msg.Data,
		"timestamp": msg.Timestamp,
	})
}

func (s *Server) reply(conn *peers.Conn, resp domain.Response) {
	if err := conn.WriteJSON(resp); err != nil {
		s.log.Warn("toolport: reply write failed", "peer", conn.Label(), "err", err)
		s.toolPeers.Remove(conn)
		_ = conn.Close()
	}
}
