package canvas

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// noWait neutralises the retry backoff for the duration of a test.
func noWait(t *testing.T) {
	t.Helper()
	old := waitFn
	waitFn = func(int) time.Duration { return 0 }
	t.Cleanup(func() { waitFn = old })
}

// newTestClient returns a client pointed at srv with retries enabled
// and backoff disabled.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	noWait(t)
	cl, err := New(srv.URL, "test-token",
		WithHTTPClient(srv.Client()),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
	require.NoError(t, err)
	return cl
}

func TestNew(t *testing.T) {
	t.Run("empty token is an error", func(t *testing.T) {
		_, err := New("https://canvas.example.edu", "")
		assert.Error(t, err)
	})
	t.Run("empty base URL falls back to default", func(t *testing.T) {
		cl, err := New("", "tok")
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, cl.BaseURL())
	})
	t.Run("trailing slash is trimmed", func(t *testing.T) {
		cl, err := New("https://canvas.example.edu/", "tok")
		require.NoError(t, err)
		assert.Equal(t, "https://canvas.example.edu", cl.BaseURL())
	})
}

func TestClient_authHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	cl := newTestClient(t, srv)
	_, err := cl.Courses(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestClient_pagination(t *testing.T) {
	var mux http.ServeMux
	var srv *httptest.Server
	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses?page=2>; rel="next", <%s/api/v1/courses?page=1>; rel="current"`, srv.URL, srv.URL))
			fmt.Fprint(w, `[{"id":1,"name":"Biology"},{"id":2,"name":"Chemistry"}]`)
		case "2":
			// no next link on the last page
			fmt.Fprint(w, `[{"id":3,"name":"Physics"}]`)
		default:
			http.Error(w, "no such page", http.StatusBadRequest)
		}
	})
	srv = httptest.NewServer(&mux)
	defer srv.Close()

	cl := newTestClient(t, srv)
	courses, err := cl.Courses(t.Context())
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.Equal(t, int64(1), courses[0].ID)
	assert.Equal(t, "Physics", courses[2].Name)
}

func TestClient_notFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cl := newTestClient(t, srv)
	_, err := cl.GetSubmission(t.Context(), 1, 2, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_retryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "borked", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id":42,"user_id":7,"assignment_id":2}`)
	}))
	defer srv.Close()

	cl := newTestClient(t, srv)
	sub, err := cl.GetSubmission(t.Context(), 1, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sub.ID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_permanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	cl := newTestClient(t, srv)
	_, err := cl.Courses(t.Context())
	require.Error(t, err)
	var sce StatusCodeError
	require.ErrorAs(t, err, &sce)
	assert.Equal(t, http.StatusForbidden, sce.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{
			"canvas style",
			`<https://canvas.example.edu/api/v1/courses?page=2&per_page=10>; rel="next", <https://canvas.example.edu/api/v1/courses?page=1&per_page=10>; rel="first"`,
			"https://canvas.example.edu/api/v1/courses?page=2&per_page=10",
		},
		{
			"no next",
			`<https://canvas.example.edu/api/v1/courses?page=1>; rel="first", <https://canvas.example.edu/api/v1/courses?page=1>; rel="last"`,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextLink(tt.header))
		})
	}
}

func TestListAttachments_tagsOwner(t *testing.T) {
	cl, err := New("", "tok")
	require.NoError(t, err)

	sub := &Submission{
		ID: 99,
		Attachments: []Attachment{
			{ID: 1, Filename: "a.txt"},
			{ID: 2, Filename: "b.pdf"},
		},
	}
	atts, err := cl.ListAttachments(t.Context(), sub)
	require.NoError(t, err)
	require.Len(t, atts, 2)
	for _, a := range atts {
		assert.Equal(t, int64(99), a.SubmissionID)
	}
	// the submission's own slice is untouched
	assert.Zero(t, sub.Attachments[0].SubmissionID)
}

func TestListAttachments_neverNil(t *testing.T) {
	cl, err := New("", "tok")
	require.NoError(t, err)

	atts, err := cl.ListAttachments(t.Context(), &Submission{ID: 1})
	require.NoError(t, err)
	assert.NotNil(t, atts)
	assert.Empty(t, atts)
}

func TestGradeSubmission(t *testing.T) {
	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		fmt.Fprint(w, `{"id":5,"user_id":7,"assignment_id":2,"grade":"A"}`)
	}))
	defer srv.Close()

	cl := newTestClient(t, srv)
	sub, err := cl.GradeSubmission(t.Context(), 1, 2, 7, "A", "nice work")
	require.NoError(t, err)
	require.NotNil(t, sub.Grade)
	assert.Equal(t, "A", *sub.Grade)
	assert.Equal(t, []string{"A"}, gotForm["submission[posted_grade]"])
	assert.Equal(t, []string{"nice work"}, gotForm["comment[text_comment]"])
}

func TestGradeSubmission_nothingToPost(t *testing.T) {
	cl, err := New("", "tok")
	require.NoError(t, err)
	_, err = cl.GradeSubmission(t.Context(), 1, 2, 3, "", "")
	assert.Error(t, err)
}
