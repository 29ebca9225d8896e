package gateway

// In this file: the HTTP front door terminating the protocol endpoints.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// sessionIDParam is the query parameter carrying the session
// identifier; sessionIDHeader is its header equivalent.  Either is
// accepted, the query parameter wins.
const (
	sessionIDParam  = "sessionId"
	sessionIDHeader = "Mcp-Session-Id"
)

// Standard JSON-RPC 2.0 error codes, plus the implementation-defined
// session error used by this gateway.
const (
	codeInternalError   = -32603
	codeSessionNotFound = -32001
	codeSessionClosed   = -32002
)

// defMaxBodySize caps a single inbound message at 1 MiB.
const defMaxBodySize = 1 << 20

var validate = validator.New()

// Config holds the gateway configuration.  Unknown or malformed values
// are rejected at construction, not at point of use.
type Config struct {
	// Name identifies the server in the /health response.
	Name string `validate:"required"`
	// MaxBodySize caps the size of one POSTed message in bytes;
	// 0 selects the default of 1 MiB.
	MaxBodySize int64 `validate:"min=0"`
	// Logger receives structured diagnostics; nil falls back to
	// slog.Default().
	Logger *slog.Logger `validate:"-"`
}

// Server is the gateway front door.  It terminates the HTTP protocol
// endpoints, resolves sessions through the registry and hands request/
// response pairs to the session's transport.
type Server struct {
	name    string
	reg     *Registry
	maxBody int64
	lg      *slog.Logger
}

// New creates a gateway serving conversations produced by newConv.
func New(cfg Config, newConv ConversationFactory) (*Server, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("gateway config: %w", err)
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = defMaxBodySize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		name:    cfg.Name,
		reg:     NewRegistry(newConv),
		maxBody: cfg.MaxBodySize,
		lg:      cfg.Logger,
	}, nil
}

// Registry exposes the session registry, primarily for tests and
// shutdown accounting.
func (s *Server) Registry() *Registry { return s.reg }

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sse", s.recovered(s.handleOpen))
	mux.HandleFunc("POST /messages", s.recovered(s.handleMessage))
	mux.HandleFunc("DELETE /sse", s.recovered(s.handleClose))
	return middleware.Logger(mux)
}

// ListenAndServe serves the gateway on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{Addr: addr, Handler: s.Handler()}

	s.lg.InfoContext(ctx, "gateway listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.lg.InfoContext(ctx, "gateway shutting down", "open_sessions", s.reg.Count())
		if err := httpSrv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("gateway shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// sessionID extracts the session identifier from the request, checking
// the query parameter first, then the header.
func sessionID(r *http.Request) string {
	if id := r.URL.Query().Get(sessionIDParam); id != "" {
		return id
	}
	return r.Header.Get(sessionIDHeader)
}

// handleHealth reports liveness.  No session semantics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"server": s.name,
	})
}

// handleOpen provisions a new session and serves its event stream until
// the transport closes.  A stale identifier presented on open is
// explicitly invalidated first; carrying a previous conversation over a
// new stream is never attempted.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if old := sessionID(r); old != "" {
		s.lg.InfoContext(r.Context(), "invalidating stale session on new open", "session_id", old)
		s.reg.Release(old)
	}

	rec, _ := s.reg.Resolve("")
	s.lg.InfoContext(r.Context(), "session opened", "session_id", rec.ID)

	endpoint := "/messages?" + sessionIDParam + "=" + rec.ID
	if err := rec.Transport.run(r.Context(), w, endpoint); err != nil {
		s.lg.ErrorContext(r.Context(), "session stream error", "session_id", rec.ID, "error", err)
	}
	s.lg.InfoContext(r.Context(), "session closed", "session_id", rec.ID)
}

// handleMessage routes one follow-up message to its session.  An
// unknown identifier is a hard 404: this path never provisions a
// session, as silently starting a fresh conversation would corrupt the
// client's request/response correlation.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	rec, ok := s.reg.Lookup(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, codeSessionNotFound, "session not found")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeInternalError, fmt.Sprintf("read request body: %v", err))
		return
	}

	if err := rec.Dispatch(r.Context(), body); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			s.writeError(w, http.StatusNotFound, codeSessionClosed, "session is closed")
			return
		}
		s.writeError(w, http.StatusInternalServerError, codeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Accepted")
}

// handleClose terminates a session.  Releasing is idempotent, so an
// unknown or already-closed identifier is still a successful no-op.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if validID(id) {
		s.lg.InfoContext(r.Context(), "session close requested", "session_id", id)
		s.reg.Release(id)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "closed"})
}

// recovered converts a panic in a handler into a structured 500
// response.  The session and its registration survive, so subsequent
// messages on the same session still work.
func (s *Server) recovered(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.lg.ErrorContext(r.Context(), "panic in handler", "path", r.URL.Path, "panic", rec)
				s.writeError(w, http.StatusInternalServerError, codeInternalError, "internal server error")
			}
		}()
		next(w, r)
	}
}

// jsonRPCError is the structured error body emitted on failures.
type jsonRPCError struct {
	JSONRPC string       `json:"jsonrpc"`
	Error   jsonRPCCause `json:"error"`
	ID      any          `json:"id"`
}

type jsonRPCCause struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(jsonRPCError{
		JSONRPC: "2.0",
		Error:   jsonRPCCause{Code: code, Message: msg},
		ID:      nil,
	}); err != nil {
		s.lg.Error("write error response", "error", err)
	}
}
