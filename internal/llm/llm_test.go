package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/russo2100/trading-analytics-rag/internal/config"
	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

func fastRetry(n int) ragerrors.RetryConfig {
	return ragerrors.RetryConfig{MaxRetries: n, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, ShouldRetry: ragerrors.IsRetryable}
}

const chatOK = `{"id":"c1","object":"chat.completion","model":"m","choices":[{"index":0,
	"message":{"role":"assistant","content":"Final Answer: 42"},"finish_reason":"stop"}],
	"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`

// --- TS01: OpenAI-compatible client ---

func TestOpenAIClient_Complete(t *testing.T) {
	// Given: a fake OpenRouter endpoint that records the request
	var got map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatOK))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", Referer: "ref", Title: "title", Retry: fastRetry(0)})
	require.NoError(t, err)

	// When: completing at temperature 0 with a system prompt
	out, err := c.Complete(context.Background(), Request{
		Prompt: "q", SystemPrompt: "sys", Temperature: 0, MaxTokens: 100, Stop: []string{"\nObservation:"},
	})

	// Then: the answer is returned and the payload is complete
	require.NoError(t, err)
	assert.Equal(t, "Final Answer: 42", out)
	assert.Equal(t, "Bearer k", headers.Get("Authorization"))
	assert.Equal(t, "ref", headers.Get("HTTP-Referer"))
	assert.Equal(t, "title", headers.Get("X-Title"))
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.EqualValues(t, 100, got["max_tokens"])
	assert.Contains(t, got, "temperature", "zero temperature must still be sent")
}

func TestOpenAIClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatOK))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", Retry: fastRetry(2)})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), Request{Prompt: "q"})

	require.NoError(t, err)
	assert.Equal(t, "Final Answer: 42", out)
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAIClient_AuthErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", Retry: fastRetry(3)})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), Request{Prompt: "q"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewOpenAIClient_MissingKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{Model: "m"})
	assert.Equal(t, ragerrors.ErrCodeMissingAPIKey, ragerrors.GetCode(err))
}

func TestTemperature(t *testing.T) {
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), temperature(0))
	assert.Equal(t, float32(0.3), temperature(0.3))
}

// --- TS02: Ollama client ---

func TestOllamaClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, 50, req.Options.NumPredict)
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: "hello"}})
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{Host: srv.URL, Model: "llama3", Retry: fastRetry(0)})

	out, err := c.Complete(context.Background(), Request{Prompt: "hi", MaxTokens: 50})

	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOllamaClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{Host: srv.URL, Model: "x", Retry: fastRetry(2)})

	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestNew_Factory(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)

	_, err = New(config.LLMConfig{Provider: "openrouter"})
	assert.Error(t, err, "missing key")

	_, err = New(config.LLMConfig{Provider: "gpt-local"})
	assert.Error(t, err)
}
