package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/thinktank/internal/models"
	"github.com/xhad/thinktank/internal/types"
)

var _ types.Gateway = (*Client)(nil)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewWithConfig(Config{BaseURL: server.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewWithConfig(t *testing.T) {
	c, err := NewWithConfig(Config{BaseURL: "http://backend:8000/"})
	require.NoError(t, err)
	assert.Equal(t, "http://backend:8000", c.BaseURL())
	assert.Equal(t, 60*time.Second, c.config.Timeout)
	assert.Nil(t, c.limiter)

	_, err = NewWithConfig(Config{})
	assert.Error(t, err)

	_, err = NewWithConfig(Config{BaseURL: "http://x", Timeout: -time.Second})
	assert.Error(t, err)
}

func TestSendIndexedChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What is our Q3 revenue?", req["message"])

		w.Write([]byte(`{"response": "Q3 revenue was $4.2M."}`))
	})

	got, err := c.SendIndexedChat(context.Background(), "What is our Q3 revenue?")
	require.NoError(t, err)
	assert.Equal(t, "Q3 revenue was $4.2M.", got)
}

func TestExtractDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract_text", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)

		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4 fake", string(data))

		w.Write([]byte(`{"text": "Report body..."}`))
	})

	got, err := c.ExtractDocument(context.Background(), strings.NewReader("%PDF-1.4 fake"), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Report body...", got)
}

func TestSendFollowup(t *testing.T) {
	var payload struct {
		Doc     string            `json:"doc"`
		History []json.RawMessage `json:"history"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/followup_chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{"answer": "It covers Q3."}`))
	})

	history := models.Transcript{models.UserTurn("What does it cover?")}
	got, err := c.SendFollowup(context.Background(), "Report body...", history)
	require.NoError(t, err)
	assert.Equal(t, "It covers Q3.", got)
	assert.Equal(t, "Report body...", payload.Doc)
	require.Len(t, payload.History, 1)
	assert.JSONEq(t, `{"role":"user","content":"What does it cover?"}`, string(payload.History[0]))
}

func TestSendFollowupEmptyHistoryEncodesAsArray(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(`{"answer": "ok"}`))
	})

	_, err := c.SendFollowup(context.Background(), "doc", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw["history"]))
}

func TestProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"server error", http.StatusInternalServerError, "boom", "500"},
		{"rejected file", http.StatusBadRequest, `{"error":"unsupported"}`, "unsupported"},
		{"missing field", http.StatusOK, `{"answer":"wrong field"}`, `missing field "response"`},
		{"null field", http.StatusOK, `{"response":null}`, `missing field "response"`},
		{"non string field", http.StatusOK, `{"response":42}`, "not a string"},
		{"not json", http.StatusOK, `<html>oops</html>`, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.SendIndexedChat(context.Background(), "hi")
			require.Error(t, err)

			var gerr *GatewayError
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, KindProtocol, gerr.Kind)
			assert.Equal(t, tt.status, gerr.StatusCode)
			assert.Contains(t, gerr.Error(), tt.contains)
		})
	}
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	body := "a" + strings.Repeat("é", 300)

	got := excerpt([]byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, ": a"+strings.Repeat("é", maxErrorExcerpt-1)+"...", got)

	assert.Equal(t, ": short body", excerpt([]byte("  short\n body ")))
	assert.Empty(t, excerpt([]byte("   ")))
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, err := NewWithConfig(Config{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.SendIndexedChat(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.Contains(t, err.Error(), "cannot reach backend")
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, err := NewWithConfig(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.SendIndexedChat(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout))
	assert.Contains(t, err.Error(), "timed out")
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"late"}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SendIndexedChat(ctx, "hi")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	c, err := NewWithConfig(Config{BaseURL: server.URL, RateLimit: 20})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.SendIndexedChat(context.Background(), "hi")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
