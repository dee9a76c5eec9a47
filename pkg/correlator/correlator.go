// Package correlator matches asynchronous replies to their originating
// requests by id. One Table guards the pending set for one connection;
// ids come from a collision-resistant source shared by every caller.
package correlator

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh correlation id. 128-bit random, so ids are
// pairwise unique across a table's lifetime for any practical load.
func NewID() string {
	return uuid.NewString()
}

// Result is what a pending request resolves to: the reply's result bytes,
// or the error that retired it.
type Result struct {
	Payload json.RawMessage
	Err     error
}

type entry struct {
	ch      chan Result
	created time.Time
}

// Table tracks pending requests for one connection. Every id is retired
// exactly once: by a matching reply, by cancellation (timeout), or by
// FailAll when the connection dies. Whoever deletes the entry owns the
// resolution.
type Table struct {
	mu      sync.Mutex
	pending map[string]entry
}

// NewTable creates an empty pending table.
func NewTable() *Table {
	return &Table{pending: make(map[string]entry)}
}

// Register creates the pending slot for id and returns the channel the
// resolution will arrive on. The channel is buffered so resolution never
// blocks on a caller that already gave up.
func (t *Table) Register(id string) <-chan Result {
	ch := make(chan Result, 1)
	t.mu.Lock()
	t.pending[id] = entry{ch: ch, created: time.Now()}
	t.mu.Unlock()
	return ch
}

// Resolve delivers a reply to the pending slot for id and retires it.
// Returns false when the id is not pending (late or unknown replies are
// discarded without error).
func (t *Table) Resolve(id string, payload json.RawMessage, err error) bool {
	t.mu.Lock()
	e, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.ch <- Result{Payload: payload, Err: err}
	return true
}

// Cancel retires id without delivering a result, for callers that stopped
// waiting. Returns false when the id was already resolved; the caller must
// then read the in-flight result from its channel instead.
func (t *Table) Cancel(id string) bool {
	t.mu.Lock()
	_, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	return ok
}

// FailAll retires every pending id with err, releasing all suspended
// callers. Used when the owning connection is detected closed.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	retired := t.pending
	t.pending = make(map[string]entry)
	t.mu.Unlock()
	for _, e := range retired {
		e.ch <- Result{Err: err}
	}
	return len(retired)
}

// Len returns the number of currently pending requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
