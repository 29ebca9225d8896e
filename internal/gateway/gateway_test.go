package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	gw, err := New(Config{Name: "canvas-mcp-test"}, func() Conversation { return echoConv{} })
	require.NoError(t, err)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return gw, srv
}

// sseClient is one connected test client: an open event stream plus the
// session identifier it was issued.
type sseClient struct {
	id     string
	resp   *http.Response
	events chan string // data payloads of "message" events
}

// openSSE connects to the event endpoint and consumes the stream in the
// background.  It returns once the endpoint event (and with it the
// session identifier) has been received.
func openSSE(t *testing.T, baseURL string) *sseClient {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { resp.Body.Close() })

	c := &sseClient{resp: resp, events: make(chan string, 16)}

	idCh := make(chan string, 1)
	go func() {
		defer close(c.events)
		var event string
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data := strings.TrimPrefix(line, "data: ")
				switch event {
				case "endpoint":
					idCh <- data[strings.Index(data, "=")+1:]
				case "message":
					c.events <- data
				}
			}
		}
	}()

	select {
	case c.id = <-idCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no endpoint event received")
	}
	require.NotEmpty(t, c.id)
	return c
}

// next waits for the next message event on the stream.
func (c *sseClient) next(t *testing.T) string {
	t.Helper()
	select {
	case ev, ok := <-c.events:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func postMessage(t *testing.T, baseURL, id, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(
		fmt.Sprintf("%s/messages?sessionId=%s", baseURL, id),
		"application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func deleteSession(t *testing.T, baseURL, id string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/sse?sessionId=%s", baseURL, id), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGateway_health(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "canvas-mcp-test", health["server"])
}

func TestGateway_openIssuesSessionID(t *testing.T) {
	gw, srv := newTestGateway(t)
	c := openSSE(t, srv.URL)

	assert.Equal(t, c.id, c.resp.Header.Get("Mcp-Session-Id"))
	_, found := gw.Registry().Lookup(c.id)
	assert.True(t, found)
}

func TestGateway_messageRoundTrip(t *testing.T) {
	_, srv := newTestGateway(t)
	c := openSSE(t, srv.URL)

	resp := postMessage(t, srv.URL, c.id, `{"jsonrpc":"2.0","method":"ping","id":1}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	ev := c.next(t)
	assert.Contains(t, ev, "ping")
}

func TestGateway_unknownSessionIs404(t *testing.T) {
	gw, srv := newTestGateway(t)

	for _, id := range []string{"", "bogus", "d9428888-122b-11e1-b85c-61cd3cbb3210"} {
		resp := postMessage(t, srv.URL, id, `{}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "id %q", id)

		var body jsonRPCError
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "2.0", body.JSONRPC)
		assert.Equal(t, codeSessionNotFound, body.Error.Code)
	}
	// a follow-up message must never provision a session
	assert.Zero(t, gw.Registry().Count())
}

func TestGateway_deleteClosesSession(t *testing.T) {
	gw, srv := newTestGateway(t)
	c := openSSE(t, srv.URL)

	resp := deleteSession(t, srv.URL, c.id)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return gw.Registry().Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	// the stream ends for the client
	select {
	case _, ok := <-c.events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after DELETE")
	}

	// follow-up messages on the released identifier are a hard 404
	post := postMessage(t, srv.URL, c.id, `{}`)
	assert.Equal(t, http.StatusNotFound, post.StatusCode)

	// deleting again is an idempotent no-op
	again := deleteSession(t, srv.URL, c.id)
	assert.Equal(t, http.StatusOK, again.StatusCode)
}

func TestGateway_sessionIsolation(t *testing.T) {
	gw, srv := newTestGateway(t)

	// three simultaneous sessions with independent conversations
	a := openSSE(t, srv.URL)
	b := openSSE(t, srv.URL)
	c := openSSE(t, srv.URL)
	require.Equal(t, 3, gw.Registry().Count())
	assert.NotEqual(t, a.id, b.id)
	assert.NotEqual(t, b.id, c.id)

	// closing b must not affect a or c
	deleteSession(t, srv.URL, b.id)
	require.Eventually(t, func() bool { return gw.Registry().Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	pa := postMessage(t, srv.URL, a.id, `{"from":"a"}`)
	assert.Equal(t, http.StatusAccepted, pa.StatusCode)
	pc := postMessage(t, srv.URL, c.id, `{"from":"c"}`)
	assert.Equal(t, http.StatusAccepted, pc.StatusCode)

	assert.Contains(t, a.next(t), `from`)
	assert.Contains(t, c.next(t), `from`)

	pb := postMessage(t, srv.URL, b.id, `{"from":"b"}`)
	assert.Equal(t, http.StatusNotFound, pb.StatusCode)
}

func TestGateway_staleIDInvalidatedOnNewOpen(t *testing.T) {
	gw, srv := newTestGateway(t)
	c := openSSE(t, srv.URL)

	// a client reconnecting with its old identifier gets a fresh
	// session and the old one is actively invalidated
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/sse?sessionId="+c.id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	newID := resp.Header.Get("Mcp-Session-Id")
	assert.NotEmpty(t, newID)
	assert.NotEqual(t, c.id, newID)

	_, found := gw.Registry().Lookup(c.id)
	assert.False(t, found, "old session must be invalidated")
	_, found = gw.Registry().Lookup(newID)
	assert.True(t, found)
}

func TestGateway_messageOrdering(t *testing.T) {
	_, srv := newTestGateway(t)
	c := openSSE(t, srv.URL)

	// within one session, replies arrive in request order
	for i := range 5 {
		resp := postMessage(t, srv.URL, c.id, fmt.Sprintf(`{"seq":%d}`, i))
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	for i := range 5 {
		assert.Contains(t, c.next(t), fmt.Sprintf(`seq\":%d`, i))
	}
}

func TestGateway_configValidation(t *testing.T) {
	_, err := New(Config{Name: ""}, func() Conversation { return echoConv{} })
	assert.Error(t, err, "a nameless gateway must be rejected")
}

func TestGateway_bodyLimit(t *testing.T) {
	gw, err := New(Config{Name: "tiny", MaxBodySize: 8}, func() Conversation { return echoConv{} })
	require.NoError(t, err)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	c := openSSE(t, srv.URL)
	resp := postMessage(t, srv.URL, c.id, strings.Repeat("x", 64))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGateway_shutdown(t *testing.T) {
	gw, err := New(Config{Name: "canvas-mcp-test"}, func() Conversation { return echoConv{} })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- gw.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}
