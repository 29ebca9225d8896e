package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoConv is a Conversation that echoes each message back as a
// JSON-RPC result.
type echoConv struct{}

func (echoConv) HandleMessage(_ context.Context, msg json.RawMessage) any {
	return map[string]any{"jsonrpc": "2.0", "result": string(msg), "id": 1}
}

// silentConv never responds; every message behaves like a notification.
type silentConv struct{}

func (silentConv) HandleMessage(context.Context, json.RawMessage) any { return nil }

func newTestRegistry() *Registry {
	return NewRegistry(func() Conversation { return echoConv{} })
}

func TestRegistry_resolveCreates(t *testing.T) {
	r := newTestRegistry()

	rec, existed := r.Resolve("")
	assert.False(t, existed)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.ID)
	assert.NotNil(t, rec.Conv)
	require.NotNil(t, rec.Transport)
	assert.Equal(t, rec.ID, rec.Transport.ID())
	assert.Equal(t, 1, r.Count())

	// identifiers are well-formed UUIDs
	_, err := uuid.Parse(rec.ID)
	assert.NoError(t, err)
}

func TestRegistry_resolveExisting(t *testing.T) {
	r := newTestRegistry()
	rec, _ := r.Resolve("")

	got, existed := r.Resolve(rec.ID)
	assert.True(t, existed)
	assert.Same(t, rec, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_unknownIDProvisionsFresh(t *testing.T) {
	r := newTestRegistry()

	// a well-formed but never-issued id is treated as absent, and the
	// supplied id is never adopted
	stranger := uuid.NewString()
	rec, existed := r.Resolve(stranger)
	assert.False(t, existed)
	assert.NotEqual(t, stranger, rec.ID)

	_, found := r.Lookup(stranger)
	assert.False(t, found)
}

func TestRegistry_malformedIDTreatedAsAbsent(t *testing.T) {
	r := newTestRegistry()
	for _, id := range []string{"", "not-a-uuid", "1234", "../../etc/passwd"} {
		rec, existed := r.Resolve(id)
		assert.False(t, existed, "id %q", id)
		require.NotNil(t, rec)
	}
}

func TestRegistry_lookupNeverCreates(t *testing.T) {
	r := newTestRegistry()
	_, found := r.Lookup(uuid.NewString())
	assert.False(t, found)
	assert.Zero(t, r.Count())
}

func TestRegistry_releaseIdempotent(t *testing.T) {
	r := newTestRegistry()
	rec, _ := r.Resolve("")

	r.Release(rec.ID)
	assert.Zero(t, r.Count())
	assert.Equal(t, StateClosed, rec.Transport.State())

	// releasing again, and releasing garbage, is a no-op
	r.Release(rec.ID)
	r.Release("whatever")
	assert.Zero(t, r.Count())

	// the released identifier now behaves as unknown
	_, found := r.Lookup(rec.ID)
	assert.False(t, found)
	fresh, existed := r.Resolve(rec.ID)
	assert.False(t, existed)
	assert.NotEqual(t, rec.ID, fresh.ID)
}

func TestRegistry_transportCloseReleasesRecord(t *testing.T) {
	r := newTestRegistry()
	rec, _ := r.Resolve("")

	// closing the transport fires the cleanup exactly once, which must
	// remove the record
	rec.Transport.Close()
	<-rec.Transport.Done()
	assert.Zero(t, r.Count())
}

func TestRegistry_concurrentResolveSameID(t *testing.T) {
	r := newTestRegistry()
	rec, _ := r.Resolve("")

	const n = 64
	results := make([]*Record, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, existed := r.Resolve(rec.ID)
			assert.True(t, existed)
			results[i] = got
		}()
	}
	wg.Wait()

	// never two distinct conversations for the same live identifier
	for _, got := range results {
		assert.Same(t, rec, got)
	}
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_concurrentResolveRelease(t *testing.T) {
	r := newTestRegistry()

	// hammer overlapping resolve/release; the registry must end in one
	// consistent state with no dangling records
	const n = 32
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, _ := r.Resolve("")
			ids <- rec.ID
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Release(<-ids)
		}()
	}
	wg.Wait()
	close(ids)

	assert.Zero(t, r.Count())
}

func TestRecord_dispatchEchoes(t *testing.T) {
	r := newTestRegistry()
	rec, _ := r.Resolve("")

	// drain the transport in the background so Send does not block
	done := make(chan []byte, 1)
	go func() { done <- <-rec.Transport.out }()

	err := rec.Dispatch(t.Context(), json.RawMessage(`{"ping":true}`))
	require.NoError(t, err)
	got := <-done
	assert.Contains(t, string(got), `{\"ping\":true}`)
}

func TestRecord_dispatchNotification(t *testing.T) {
	r := NewRegistry(func() Conversation { return silentConv{} })
	rec, _ := r.Resolve("")

	// a nil conversation response emits nothing and is not an error
	err := rec.Dispatch(t.Context(), json.RawMessage(`{"method":"notify"}`))
	require.NoError(t, err)
	assert.Empty(t, rec.Transport.out)
}

func TestRecord_dispatchToClosedSession(t *testing.T) {
	r := newTestRegistry()
	rec, _ := r.Resolve("")
	r.Release(rec.ID)

	err := rec.Dispatch(t.Context(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrSessionClosed)
}
