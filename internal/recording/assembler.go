package recording

import (
	"context"
	"fmt"

	"github.com/dlanza/callprobe/internal/audio"
	"github.com/dlanza/callprobe/internal/conversation"
	"github.com/dlanza/callprobe/internal/signaling"
)

// Assemble reconstructs a single playable WAV from the captured per-turn
// segments, concatenated in chronological interleaved order. Mu-law segments
// are expanded to PCM16 first.
func Assemble(segments []conversation.AudioSegment) ([]byte, error) {
	if len(segments) == 0 {
		return nil, nil
	}

	sampleRate := segments[0].Encoding.SampleRate()
	var pcm []byte
	for i, seg := range segments {
		if seg.Encoding.SampleRate() != sampleRate {
			return nil, fmt.Errorf("segment %d sample rate %d differs from %d", i, seg.Encoding.SampleRate(), sampleRate)
		}
		pcm = append(pcm, seg.Encoding.PCM16LE(seg.Raw)...)
	}
	return audio.EncodeWAVPCM16LE(pcm, sampleRate)
}

// AssembleWithProvider prefers a higher-fidelity provider-hosted recording
// when one can be fetched, falling back to the locally captured segments.
func AssembleWithProvider(ctx context.Context, fetcher signaling.RecordingFetcher, callID string, segments []conversation.AudioSegment) ([]byte, error) {
	if fetcher != nil && callID != "" {
		if hosted, err := fetcher.FetchRecording(ctx, callID); err == nil && len(hosted) > 0 {
			return hosted, nil
		}
	}
	return Assemble(segments)
}
