package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

// OllamaConfig configures a local Ollama chat model.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
	Retry   ragerrors.RetryConfig
}

// OllamaClient completes prompts through Ollama's /api/chat.
type OllamaClient struct {
	cfg    OllamaConfig
	client *http.Client
}

var _ Completer = (*OllamaClient)(nil)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

// NewOllamaClient creates the client. No network call is made here.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = ragerrors.DefaultRetryConfig()
	}
	return &OllamaClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Complete sends one non-streaming chat request.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]ollamaMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens, Stop: req.Stop},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	return ragerrors.RetryWithResult(ctx, c.cfg.Retry, func() (string, error) {
		return c.doChat(ctx, body)
	})
}

func (c *OllamaClient) doChat(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", ragerrors.New(ragerrors.ErrCodeServiceUnavailable, "ollama request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", ragerrors.FromHTTPStatus(resp.StatusCode, ragerrors.ErrCodeCompletionFailed,
			fmt.Sprintf("API Error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", ragerrors.New(ragerrors.ErrCodeCompletionFailed, parsed.Error, nil)
	}
	return parsed.Message.Content, nil
}
