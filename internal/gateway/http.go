package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPClient talks to an OpenAI-style chat-completions endpoint.
type HTTPClient struct {
	config Config
	http   *http.Client
	logger *zap.Logger
	sleep  func(time.Duration)
}

// ClientOption customizes the HTTP client.
type ClientOption func(*HTTPClient)

// WithLogger injects a logger for retry diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient swaps the underlying transport (tests).
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithSleep overrides the backoff sleeper (tests).
func WithSleep(sleep func(time.Duration)) ClientOption {
	return func(c *HTTPClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewHTTPClient validates the config and builds a client. The per-call
// timeout lives on the http.Client so a hung round trip surfaces as a
// transport failure eligible for retry.
func NewHTTPClient(config Config, opts ...ClientOption) (*HTTPClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	client := &HTTPClient{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: zap.NewNop(),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete performs one logical completion call with bounded retry on
// transport failure only. Attempt n sleeps base*2^(n-1) before retrying.
// Non-transport failures (auth rejection, malformed response body) return
// immediately without consuming further attempts.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (Response, error) {
	body, err := c.encode(req)
	if err != nil {
		return Response{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries+1; attempt++ {
		if attempt > 1 {
			delay := c.config.BackoffBase * time.Duration(1<<uint(attempt-2))
			c.logger.Debug("gateway retrying after transport failure",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return Response{}, &TransportError{Attempt: attempt, Err: ctx.Err()}
			default:
			}
			c.sleep(delay)
		}
		resp, err := c.roundTrip(ctx, body, attempt)
		if err == nil {
			return resp, nil
		}
		var terr *TransportError
		if !errors.As(err, &terr) {
			return Response{}, err
		}
		lastErr = err
	}
	return Response{}, lastErr
}

func (c *HTTPClient) encode(req Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}
	return body, nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, body []byte, attempt int) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// Covers network failures and client timeouts.
		return Response{}, &TransportError{Attempt: attempt, Err: err}
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, &TransportError{Status: httpResp.StatusCode, Attempt: attempt, Err: err}
	}

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= http.StatusInternalServerError {
		return Response{}, &TransportError{
			Status:  httpResp.StatusCode,
			Attempt: attempt,
			Err:     fmt.Errorf("backend returned %d: %s", httpResp.StatusCode, truncate(data, 256)),
		}
	}
	if httpResp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("gateway: backend rejected request with %d: %s", httpResp.StatusCode, truncate(data, 256))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Response{}, fmt.Errorf("gateway: decode response: %w", err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("gateway: backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("gateway: no completion returned")
	}
	return Response{
		Content:      strings.TrimSpace(parsed.Choices[0].Message.Content),
		FinishReason: parsed.Choices[0].FinishReason,
		PromptTokens: parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func truncate(data []byte, limit int) string {
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
