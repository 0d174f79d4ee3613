package tts

import (
	"context"

	"github.com/dlanza/callprobe/internal/audio"
)

// MockSynthesizer emits the utterance's own bytes as "audio". That keeps the
// outbound path byte-exact end to end, which the codec tests rely on.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (s *MockSynthesizer) Synthesize(_ context.Context, text string, _ audio.Encoding) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	return []byte(text), nil
}
