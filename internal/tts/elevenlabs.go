package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dlanza/callprobe/internal/audio"
	"github.com/dlanza/callprobe/internal/reliability"
)

// ElevenLabsConfig configures the ElevenLabs synthesizer.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
}

// ElevenLabsSynthesizer renders one utterance per request through the
// text-to-speech endpoint, asking for the wire format directly so no local
// transcoding is needed.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	return &ElevenLabsSynthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string, enc audio.Encoding) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if strings.TrimSpace(s.cfg.VoiceID) == "" {
		return nil, fmt.Errorf("voice_id is required")
	}

	outputFormat := "ulaw_8000"
	if enc == audio.EncodingPCM16K {
		outputFormat = "pcm_16000"
	}

	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) +
		"?output_format=" + url.QueryEscape(outputFormat)

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": s.cfg.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("tts http status %d (retryable=%v): %s",
			res.StatusCode, reliability.IsRetryableHTTPStatus(res.StatusCode), string(body))
	}
	return io.ReadAll(io.LimitReader(res.Body, 32<<20))
}
