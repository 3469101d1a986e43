package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catapis/internal/logging"
)

func testClient(t *testing.T, baseURL string, retries int) *Client {
	t.Helper()
	return NewClient(Options{
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
		Retries:    retries,
		RetryDelay: time.Millisecond,
	}, logging.NewLogger(true))
}

func TestGetRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)

	body, err := c.Get(context.Background(), "/things", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.EqualValues(t, 3, attempts.Load())
}

func TestGetDoesNotRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad query"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 5)

	_, err := c.Get(context.Background(), "/things", nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, attempts.Load())

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusBadRequest, uerr.Status)
	assert.Equal(t, http.MethodGet, uerr.Method)
	assert.Equal(t, "/things", uerr.Path)
	assert.Equal(t, "bad query", uerr.Message)
}

func TestGetExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 2)

	_, err := c.Get(context.Background(), "/things", nil)
	require.Error(t, err)
	// initial attempt plus two retries
	assert.EqualValues(t, 3, attempts.Load())
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestTransportFailureIsNormalizedWithStatusZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := testClient(t, srv.URL, 0)

	_, err := c.Get(context.Background(), "/things", nil)
	require.Error(t, err)

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 0, uerr.Status)
	assert.NotEmpty(t, uerr.Message)
}

func TestLinearBackoffIsNonDecreasing(t *testing.T) {
	c := testClient(t, "http://localhost", 3)

	b := c.linearBackoff()
	first, stop := b.Next()
	require.False(t, stop)
	second, stop := b.Next()
	require.False(t, stop)
	third, stop := b.Next()
	require.False(t, stop)

	assert.Equal(t, c.retryDelay, first)
	assert.Equal(t, 2*c.retryDelay, second)
	assert.Equal(t, 3*c.retryDelay, third)
}

func TestQueryAndHeadersArePropagated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abys", r.URL.Query().Get("q"))
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)

	_, err := c.Get(context.Background(), "/breeds/search", &RequestOptions{
		Headers: map[string]string{"x-api-key": "secret-key"},
		Query:   map[string][]string{"q": {"abys"}},
	})
	require.NoError(t, err)
}

func TestMessageNormalizationPriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain text body", "upstream exploded", "upstream exploded"},
		{"json string body", `"quota exceeded"`, "quota exceeded"},
		{"message field", `{"message":"invalid breed"}`, "invalid breed"},
		{"message array", `{"message":["limit too large","bad size"]}`, "limit too large; bad size"},
		{"error field", `{"error":"Bad Request"}`, "Bad Request"},
		{"message wins over error", `{"message":"first","error":"second"}`, "first"},
		{"empty body", "", "HTTP error"},
		{"unhelpful object", `{"code":42}`, "HTTP error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, messageFromBody([]byte(tt.body)))
		})
	}
}

func TestPostSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)

	body, err := c.Post(context.Background(), "/things", map[string]string{"name": "cat"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(body))
}
