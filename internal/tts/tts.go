package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlanza/callprobe/internal/audio"
)

// Synthesizer renders caller text as raw audio in the requested wire
// encoding. Implementations are opaque injected services; the session only
// depends on this contract.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, enc audio.Encoding) ([]byte, error)
}

// Config controls synthesizer construction.
type Config struct {
	Mode string

	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
}

// NewSynthesizer builds the configured synthesizer: elevenlabs when an API
// key is present, otherwise the deterministic mock.
func NewSynthesizer(cfg Config) (Synthesizer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) != "" {
			return NewElevenLabsSynthesizer(ElevenLabsConfig{
				APIKey:  cfg.ElevenLabsAPIKey,
				BaseURL: cfg.ElevenLabsBaseURL,
				VoiceID: cfg.ElevenLabsVoiceID,
				ModelID: cfg.ElevenLabsModelID,
			}), nil
		}
		return NewMockSynthesizer(), nil
	case "elevenlabs":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			return nil, fmt.Errorf("elevenlabs synthesizer requires an API key")
		}
		return NewElevenLabsSynthesizer(ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			BaseURL: cfg.ElevenLabsBaseURL,
			VoiceID: cfg.ElevenLabsVoiceID,
			ModelID: cfg.ElevenLabsModelID,
		}), nil
	case "mock":
		return NewMockSynthesizer(), nil
	default:
		return nil, fmt.Errorf("unsupported tts mode %q (expected auto|elevenlabs|mock)", cfg.Mode)
	}
}
