package gateway

// In this file: the process-wide session registry.

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is one logical client dialogue: a handler that processes
// raw JSON-RPC messages and returns the response, or nil for
// notifications.  *mcp.Server satisfies it.
type Conversation interface {
	HandleMessage(ctx context.Context, message json.RawMessage) any
}

// ConversationFactory creates a fresh Conversation for a new session.
type ConversationFactory func() Conversation

// Record binds one session identifier to its conversation and transport
// session.  Records are owned exclusively by the Registry.
type Record struct {
	ID        string
	Conv      Conversation
	Transport *Session
	CreatedAt time.Time
}

// Dispatch processes one inbound message within this record's
// conversation and emits the reply on the transport.  Messages of one
// session are handled in arrival order; a nil conversation response
// (a notification) emits nothing.
func (rec *Record) Dispatch(ctx context.Context, message json.RawMessage) error {
	rec.Transport.dispatchMu.Lock()
	defer rec.Transport.dispatchMu.Unlock()

	resp := rec.Conv.HandleMessage(ctx, message)
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return rec.Transport.Send(data)
}

// Registry is the process-wide table of live sessions.  It is created
// once at startup and injected into the request handlers; a single
// mutex over the whole table keeps resolve and release trivially
// serialised, which is plenty for expected session counts.
type Registry struct {
	newConv ConversationFactory

	mu       sync.Mutex
	sessions map[string]*Record
}

// NewRegistry creates an empty registry.  newConv must not be nil.
func NewRegistry(newConv ConversationFactory) *Registry {
	if newConv == nil {
		panic("programming error: conversation factory is nil")
	}
	return &Registry{
		newConv:  newConv,
		sessions: make(map[string]*Record),
	}
}

// validID reports whether id has the shape of an identifier this
// registry could have issued.  Anything else is treated as absent, not
// as an error.
func validID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Resolve returns the live record for id when one exists.  Otherwise it
// provisions a new record under a freshly generated identifier (the
// supplied id is never adopted: identifiers are only ever issued by the
// registry) and returns it.  The second return value reports whether
// the record already existed.
func (r *Registry) Resolve(id string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if validID(id) {
		if rec, ok := r.sessions[id]; ok {
			return rec, true
		}
	}

	newID := uuid.NewString()
	rec := &Record{
		ID:        newID,
		Conv:      r.newConv(),
		CreatedAt: time.Now(),
	}
	rec.Transport = newSession(newID, func() { r.Release(newID) })
	r.sessions[newID] = rec
	return rec, false
}

// Lookup returns the live record for id without ever provisioning one.
// This is the path for follow-up messages, which must not silently
// start a fresh conversation.
func (r *Registry) Lookup(id string) (*Record, bool) {
	if !validID(id) {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	return rec, ok
}

// Release removes the session record and closes its transport.  It is
// idempotent: releasing an unknown or already-released identifier is a
// no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	rec, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		// Outside the lock: Close fires the cleanup callback, which
		// re-enters Release and must find the record already gone.
		rec.Transport.Close()
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
