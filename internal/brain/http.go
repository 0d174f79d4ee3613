package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient forwards completion requests to a chat-completions style
// endpoint and extracts the assistant text from common response shapes.
type HTTPClient struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

func NewHTTPClient(url, model, apiKey string) *HTTPClient {
	return &HTTPClient{
		url:    strings.TrimSpace(url),
		model:  strings.TrimSpace(model),
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{Timeout: 45 * time.Second},
	}
}

type httpCompletionPayload struct {
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
}

func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]Message, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	payload, err := json.Marshal(httpCompletionPayload{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send completion request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("completion http status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return "", fmt.Errorf("empty completion response")
		}
		return text, nil
	}
	if text := extractCompletionText(obj); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("completion response had no text")
}

func extractCompletionText(obj map[string]any) string {
	for _, k := range []string{"text", "output", "content", "message"} {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	// OpenAI chat-completions shape.
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return ""
	}
	if msg, ok := choice["message"].(map[string]any); ok {
		if s, ok := msg["content"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	if s, ok := choice["text"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
