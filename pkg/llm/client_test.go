package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/pkg/config"
)

func completionBody(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func apiError(message string) map[string]interface{} {
	return map[string]interface{}{"error": map[string]interface{}{"message": message, "type": "invalid_request_error"}}
}

func newTestClient(t *testing.T, url string, retries int, timeout time.Duration) *Client {
	t.Helper()
	c, err := New(config.LLMConfig{APIKey: "test", BaseURL: url + "/v1", Model: "test-model", Timeout: timeout, MaxRetries: retries}, nil)
	require.NoError(t, err)
	c.interval = time.Millisecond
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.LLMConfig{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCompleteJSONDecodesAnswer(t *testing.T) {
	var payload struct {
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&payload)
		writeJSON(w, http.StatusOK, completionBody("```json\n{\"score\": 3}\n```"))
	}))
	defer srv.Close()

	var out struct {
		Score int `json:"score"`
	}
	err := newTestClient(t, srv.URL, 0, time.Second).CompleteJSON(context.Background(), "system", "user", &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Score)
	assert.Equal(t, "json_object", payload.ResponseFormat.Type)
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusInternalServerError, apiError("overloaded"))
			return
		}
		writeJSON(w, http.StatusOK, completionBody(`{"ok": true}`))
	}))
	defer srv.Close()

	var out map[string]bool
	err := newTestClient(t, srv.URL, 3, time.Second).CompleteJSON(context.Background(), "s", "u", &out)
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCompleteJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadRequest, apiError("bad request"))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newTestClient(t, srv.URL, 3, time.Second).CompleteJSON(context.Background(), "s", "u", &out)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCompleteJSONTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	var out map[string]interface{}
	err := newTestClient(t, srv.URL, 0, 20*time.Millisecond).CompleteJSON(context.Background(), "s", "hi", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, statusRetryable(http.StatusTooManyRequests))
	assert.True(t, statusRetryable(http.StatusBadGateway))
	assert.False(t, statusRetryable(http.StatusUnauthorized))
	assert.True(t, retryable(errors.New("connection reset")))
}
