// Package peers tracks the live connections for one peer role and owns the
// broadcast discipline: membership is guarded by a mutex, sends never are.
package peers

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Sink is one peer's outbound half as the registry sees it. Conn is the
// transport-backed implementation; tests substitute their own.
type Sink interface {
	// Label identifies the peer in logs and dispatch results.
	Label() string
	// WriteJSON sends one JSON text frame.
	WriteJSON(v any) error
	// Close tears the connection down.
	Close() error
}

// Conn wraps a WebSocket connection with the write serialization the
// transport requires: at most one concurrent writer per connection.
type Conn struct {
	ws    *websocket.Conn
	mu    sync.Mutex
	label string
}

// NewConn wraps an accepted or dialed connection for registry use.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, label: ws.RemoteAddr().String()}
}

// Label returns the peer's remote address.
func (c *Conn) Label() string { return c.label }

// WriteJSON sends one frame, serialized against concurrent writers.
func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// ReadMessage reads the next frame. Reads are not serialized here; each
// connection has exactly one reader goroutine.
func (c *Conn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.ws.Close() }

// Registry is the live connection set for one peer role. The mutex covers
// membership only; Broadcast snapshots first and performs every send
// outside the lock, because a send may trigger a concurrent Remove.
type Registry struct {
	name string
	log  *slog.Logger

	mu    sync.RWMutex
	conns map[Sink]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for membership and broadcast events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates an empty registry. name labels the pool in logs
// ("tool", "execution", "bridge").
func NewRegistry(name string, opts ...Option) *Registry {
	r := &Registry{
		name:  name,
		log:   slog.Default(),
		conns: make(map[Sink]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a connection.
func (r *Registry) Add(s Sink) {
	r.mu.Lock()
	r.conns[s] = struct{}{}
	n := len(r.conns)
	r.mu.Unlock()
	r.log.Debug("peers: connected", "pool", r.name, "peer", s.Label(), "total", n)
}

// Remove deregisters a connection. Removing an absent connection is a
// no-op, so close paths and failed-send cleanup can race safely.
func (r *Registry) Remove(s Sink) {
	r.mu.Lock()
	_, present := r.conns[s]
	delete(r.conns, s)
	n := len(r.conns)
	r.mu.Unlock()
	if present {
		r.log.Debug("peers: disconnected", "pool", r.name, "peer", s.Label(), "total", n)
	}
}

// Snapshot returns an immutable copy of the current membership.
func (r *Registry) Snapshot() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sink, 0, len(r.conns))
	for s := range r.conns {
		out = append(out, s)
	}
	return out
}

// Count returns the current membership size.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast sends v to every connection in the current snapshot. A failed
// send removes that connection and closes it, without affecting delivery
// to the rest. Returns how many sends succeeded and how many failed.
func (r *Registry) Broadcast(v any) (sent, failed int) {
	for _, s := range r.Snapshot() {
		if err := s.WriteJSON(v); err != nil {
			failed++
			r.log.Warn("peers: broadcast send failed", "pool", r.name, "peer", s.Label(), "err", err)
			r.Remove(s)
			_ = s.Close()
			continue
		}
		sent++
	}
	return sent, failed
}

// CloseAll closes and removes every connection, typically at shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.Snapshot() {
		r.Remove(s)
		_ = s.Close()
	}
}
