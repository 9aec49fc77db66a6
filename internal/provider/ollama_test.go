package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/domain"
	"ltl/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Logger: testLogger()}
}

func newTestOllama(url string) *Ollama {
	return NewOllama(OllamaOptions{
		BaseURL:     url,
		TextModel:   "gemma3",
		VisionModel: "moondream",
		KeepAlive:   "10m",
		Retry:       fastRetry(),
		Logger:      testLogger(),
	})
}

func TestOllama_GenerateWithTools(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[
			{"function":{"name":"get_time","arguments":{"format":"%H"}}},
			{"function":{"name":"read_file","arguments":"{\"path\":\"a.txt\"}"}},
			{"function":{"name":"list_dir","arguments":"{\"path\":"}}
		]},"done":true}`))
	}))
	defer srv.Close()

	o := newTestOllama(srv.URL)
	resp, err := o.Generate(context.Background(), domain.GenerateRequest{
		Messages:    []domain.Message{{Role: "user", Content: "what hour is it"}},
		Tools:       []domain.ToolDefinition{{Name: "get_time", Description: "time", Parameters: map[string]any{"type": "object"}}},
		Temperature: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "gemma3", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "10m", got["keep_alive"])
	assert.Equal(t, 0.2, got["options"].(map[string]any)["temperature"])
	assert.Len(t, got["tools"], 1)

	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "get_time", resp.ToolCalls[0].Name)
	assert.Equal(t, "%H", resp.ToolCalls[0].Arguments["format"])
	assert.Equal(t, "a.txt", resp.ToolCalls[1].Arguments["path"])
	assert.Empty(t, resp.ToolCalls[1].ArgumentsError)
	require.Len(t, resp.ToolCalls, 3)
	assert.Contains(t, resp.ToolCalls[2].ArgumentsError, "not a JSON object")
	assert.NotNil(t, resp.ToolCalls[2].Arguments)
}

func TestOllama_GenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "loading", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"hi"},"done":true}`))
	}))
	defer srv.Close()

	resp, err := newTestOllama(srv.URL).Generate(context.Background(), domain.GenerateRequest{
		Messages: []domain.Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllama_GenerateClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestOllama(srv.URL).Generate(context.Background(), domain.GenerateRequest{})
	require.Error(t, err)
	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllama_AnalyzeSendsImage(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Content string   `json:"content"`
			Images  []string `json:"images"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":{"role":"assistant","content":"a cat"},"done":true}`))
	}))
	defer srv.Close()

	text, err := newTestOllama(srv.URL).Analyze(context.Background(), domain.VisionRequest{
		Prompt: "what is this",
		Image:  []byte("png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "a cat", text)
	assert.Equal(t, "moondream", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "what is this", got.Messages[0].Content)
	assert.Equal(t, []string{"cG5n"}, got.Messages[0].Images)
}

func TestOllama_LoadAndUnload(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var b map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&b))
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
		w.Write([]byte(`{"done":true}`))
	}))
	defer srv.Close()

	o := newTestOllama(srv.URL)
	require.NoError(t, o.Load(context.Background(), domain.ResourceVision, "moondream"))
	require.NoError(t, o.Unload(context.Background(), domain.ResourceVision, "moondream"))

	require.Len(t, bodies, 2)
	assert.Equal(t, "moondream", bodies[0]["model"])
	assert.Equal(t, "10m", bodies[0]["keep_alive"])
	assert.Equal(t, float64(0), bodies[1]["keep_alive"])
}

func TestOllama_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	o := newTestOllama(srv.URL)
	assert.NoError(t, o.Healthy(context.Background()))

	srv.Close()
	assert.Error(t, o.Healthy(context.Background()))
}

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{`{"a":1}`, map[string]any{"a": 1.0}, false},
		{`"{\"a\":\"b\"}"`, map[string]any{"a": "b"}, false},
		{`""`, map[string]any{}, false},
		{``, map[string]any{}, false},
		{`"not json"`, map[string]any{}, true},
		{`{"a":`, map[string]any{}, true},
		{`[1,2]`, map[string]any{}, true},
	}
	for _, tt := range tests {
		got, err := decodeArguments(json.RawMessage(tt.raw))
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
		} else {
			assert.NoError(t, err, tt.raw)
		}
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestOllama_Running(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ps", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"gemma3:latest","size":123}]}`))
	}))
	defer srv.Close()

	names, err := newTestOllama(srv.URL).Running(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemma3:latest"}, names)
}
