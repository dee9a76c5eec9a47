package correlator

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.False(t, seen[id], "id %q generated twice", id)
		seen[id] = true
	}
}

func TestResolveDeliversPayload(t *testing.T) {
	tbl := NewTable()
	id := NewID()
	ch := tbl.Register(id)

	ok := tbl.Resolve(id, json.RawMessage(`{"tools":[]}`), nil)
	require.True(t, ok)

	res := <-ch
	assert.NoError(t, res.Err)
	assert.JSONEq(t, `{"tools":[]}`, string(res.Payload))
	assert.Zero(t, tbl.Len())
}

func TestResolveUnknownIDDiscarded(t *testing.T) {
	tbl := NewTable()
	assert.False(t, tbl.Resolve("never-registered", nil, nil))
}

func TestResolveExactlyOnce(t *testing.T) {
	tbl := NewTable()
	id := NewID()
	ch := tbl.Register(id)

	require.True(t, tbl.Resolve(id, json.RawMessage(`1`), nil))
	assert.False(t, tbl.Resolve(id, json.RawMessage(`2`), nil), "second resolution must be discarded")

	res := <-ch
	assert.Equal(t, json.RawMessage(`1`), res.Payload)
}

func TestCancelRetiresID(t *testing.T) {
	tbl := NewTable()
	id := NewID()
	tbl.Register(id)

	require.True(t, tbl.Cancel(id))
	assert.Zero(t, tbl.Len())

	// A late reply for a cancelled id is discarded.
	assert.False(t, tbl.Resolve(id, json.RawMessage(`{}`), nil))
}

func TestCancelAfterResolve(t *testing.T) {
	tbl := NewTable()
	id := NewID()
	ch := tbl.Register(id)

	require.True(t, tbl.Resolve(id, json.RawMessage(`{}`), nil))
	assert.False(t, tbl.Cancel(id), "cancel must lose the race to an in-flight resolution")

	// The resolution is still readable.
	res := <-ch
	assert.NoError(t, res.Err)
}

func TestFailAllReleasesEveryCaller(t *testing.T) {
	tbl := NewTable()
	chans := make([]<-chan Result, 0, 5)
	for i := 0; i < 5; i++ {
		chans = append(chans, tbl.Register(NewID()))
	}

	n := tbl.FailAll(domain.ErrConnectionClosed)
	assert.Equal(t, 5, n)
	assert.Zero(t, tbl.Len())

	for _, ch := range chans {
		res := <-ch
		assert.ErrorIs(t, res.Err, domain.ErrConnectionClosed)
	}
}

func TestResolveWithErrorReply(t *testing.T) {
	tbl := NewTable()
	id := NewID()
	ch := tbl.Register(id)

	rpcErr := &domain.RPCError{Code: domain.CodeMethodNotFound, Message: "Method not found: bogus"}
	require.True(t, tbl.Resolve(id, nil, rpcErr))

	res := <-ch
	var asRPC *domain.RPCError
	require.True(t, errors.As(res.Err, &asRPC))
	assert.Equal(t, domain.CodeMethodNotFound, asRPC.Code)
}

func TestConcurrentRegisterResolve(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewID()
			ch := tbl.Register(id)
			go tbl.Resolve(id, json.RawMessage(`"ok"`), nil)
			res := <-ch
			assert.NoError(t, res.Err)
		}()
	}
	wg.Wait()
	assert.Zero(t, tbl.Len())
}
