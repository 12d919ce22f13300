// Package gateway wraps the external text-generation backend. The rest of
// the system only sees the Gateway interface; transport details, retries,
// and error classification stay here.
package gateway

import (
	"context"
	"fmt"
	"time"
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response carries the completion text plus whatever usage metadata the
// backend reported.
type Response struct {
	Content      string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// Gateway is implemented by completion backends.
type Gateway interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// TransportError marks transient backend failures: network errors,
// timeouts, rate limits, and 5xx responses. The client retries these with
// backoff up to its attempt budget, then returns the last one.
type TransportError struct {
	Status  int
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gateway: transport failure (status %d, attempt %d): %v", e.Status, e.Attempt, e.Err)
	}
	return fmt.Sprintf("gateway: transport failure (attempt %d): %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config carries backend endpoint, credentials, and retry policy.
type Config struct {
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	BackoffBase time.Duration
	Timeout     time.Duration
}

// Validate reports the missing required fields by name so operators know
// exactly what to set.
func (c Config) Validate() error {
	var missing []string
	if c.APIURL == "" {
		missing = append(missing, "api_url")
	}
	if c.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.Model == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return fmt.Errorf("gateway: missing required configuration: %v", missing)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}
