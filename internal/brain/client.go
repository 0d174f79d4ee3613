package brain

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Message is one prompt turn sent to the completion backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the normalized request for one caller utterance.
type CompletionRequest struct {
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
	TurnID   string    `json:"turn_id"`
}

// Client is the opaque LLM completion backend injected into the brain.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config controls client construction.
type Config struct {
	Mode    string
	HTTPURL string
	Model   string
	APIKey  string
}

// NewClient builds a completion client: http when a URL is configured,
// otherwise the deterministic mock.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPClient(cfg.HTTPURL, cfg.Model, cfg.APIKey), nil
		}
		return NewMockClient(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, fmt.Errorf("brain HTTP url is required for http mode")
		}
		return NewHTTPClient(cfg.HTTPURL, cfg.Model, cfg.APIKey), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported brain client mode %q", cfg.Mode)
	}
}

// MockClient returns canned caller lines keyed by call count. Used for local
// runs without an LLM backend and in tests.
type MockClient struct {
	mu    sync.Mutex
	calls int
}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(_ context.Context, req CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if strings.Contains(req.System, "wrap up the call") {
		return "Thanks, that was everything I needed. Goodbye!", nil
	}
	return fmt.Sprintf("I understand. Could you clarify point %d for me, and what should I expect after that?", c.calls), nil
}

// Calls returns how many completions were requested.
func (c *MockClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
