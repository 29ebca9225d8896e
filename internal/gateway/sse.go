package gateway

// In this file: the SSE transport session and its lifecycle state
// machine.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// State is the lifecycle state of a transport session.
type State int32

const (
	// StateConnecting is the initial state, before the event stream
	// has been handed to a client.
	StateConnecting State = iota
	// StateOpen means the stream is live and the session identifier
	// has been delivered to the peer.
	StateOpen
	// StateClosing means a close was requested; buffered output may
	// still be flushed within the grace period.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ErrSessionClosed is returned by Send when the session is closing or
// closed.  It is terminal for that message only: the process and all
// other sessions are unaffected.
var ErrSessionClosed = errors.New("session is closed")

const (
	// outboundBufSz is the depth of the outbound event queue.
	outboundBufSz = 16
	// closeGrace bounds how long a closing session may spend flushing
	// buffered output before abandoning it.
	closeGrace = 3 * time.Second
)

// Session is one SSE transport session: an outbound-only event channel
// owned by exactly one conversation.  The separate POST requests
// carrying inbound messages are correlated to it by the session
// identifier, which is generated before the stream starts and delivered
// to the client as the first event.
type Session struct {
	id      string
	created time.Time

	mu    sync.Mutex
	state State

	out     chan []byte
	closing chan struct{} // closed when a close has been requested
	done    chan struct{} // closed once the session reaches StateClosed

	closeOnce sync.Once
	finalOnce sync.Once
	cleanup   func()

	// dispatchMu serialises inbound message handling so that replies
	// are emitted in arrival order within this session.
	dispatchMu sync.Mutex
}

// newSession creates a session in StateConnecting.  cleanup is invoked
// exactly once, when the session reaches StateClosed; the registry
// wires it to release the session record.
func newSession(id string, cleanup func()) *Session {
	return &Session{
		id:      id,
		created: time.Now(),
		state:   StateConnecting,
		out:     make(chan []byte, outboundBufSz),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		cleanup: cleanup,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed once the session is fully closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send queues one outbound message for delivery on the event stream.
// Sending to a closing or closed session fails with ErrSessionClosed.
func (s *Session) Send(msg []byte) error {
	s.mu.Lock()
	if s.state >= StateClosing {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()
	select {
	case s.out <- msg:
		return nil
	case <-s.closing:
		return ErrSessionClosed
	}
}

// Close requests the transition to StateClosing.  It is safe to call
// any number of times from any goroutine.  If the stream never started
// (the session was still connecting), the session is finalised
// immediately; otherwise the serving loop flushes and finalises.
func (s *Session) Close() {
	s.mu.Lock()
	wasConnecting := s.state == StateConnecting
	if s.state < StateClosing {
		s.state = StateClosing
	}
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closing) })
	if wasConnecting {
		s.finalize()
	}
}

// finalize moves the session to StateClosed and fires the cleanup
// callback.  Exactly once.
func (s *Session) finalize() {
	s.finalOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
		if s.cleanup != nil {
			s.cleanup()
		}
	})
}

// run serves the event stream on w until the session closes or the
// peer disconnects.  The first event on the stream is the endpoint
// event carrying the message-post URL with the session identifier, so
// the client learns its id before any application message.
func (s *Session) run(ctx context.Context, w http.ResponseWriter, endpoint string) error {
	defer s.finalize()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.Close()
		return errors.New("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Mcp-Session-Id", s.id)
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint); err != nil {
		s.Close()
		return fmt.Errorf("write endpoint event: %w", err)
	}
	flusher.Flush()

	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateOpen
	}
	open := s.state == StateOpen
	s.mu.Unlock()
	if !open {
		// Closed between registration and handshake.
		return nil
	}

	for {
		select {
		case msg := <-s.out:
			if err := writeEvent(w, flusher, msg); err != nil {
				s.Close()
				return fmt.Errorf("write event: %w", err)
			}
		case <-ctx.Done():
			// peer disconnected; nothing left to flush to
			s.Close()
			return nil
		case <-s.closing:
			s.drain(w, flusher)
			return nil
		}
	}
}

// drain flushes buffered output after a close request, abandoning
// whatever remains when the grace period expires.
func (s *Session) drain(w http.ResponseWriter, flusher http.Flusher) {
	deadline := time.NewTimer(closeGrace)
	defer deadline.Stop()
	for {
		select {
		case msg := <-s.out:
			if err := writeEvent(w, flusher, msg); err != nil {
				return
			}
		case <-deadline.C:
			return
		default:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, msg []byte) error {
	if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
