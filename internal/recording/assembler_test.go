package recording

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/dlanza/callprobe/internal/audio"
	"github.com/dlanza/callprobe/internal/conversation"
	"github.com/dlanza/callprobe/internal/signaling"
)

func TestAssembleConcatenatesInOrder(t *testing.T) {
	segs := []conversation.AudioSegment{
		{Role: signaling.RoleAgent, Raw: []byte{0xFF, 0xFF}, Encoding: audio.EncodingMuLaw8K},
		{Role: signaling.RoleTestCaller, Raw: []byte{0x00}, Encoding: audio.EncodingMuLaw8K},
		{Role: signaling.RoleAgent, Raw: []byte{0xFF}, Encoding: audio.EncodingMuLaw8K},
	}

	wav, err := Assemble(segs)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	// 4 mu-law samples expand to 8 PCM bytes behind a 44-byte header.
	if len(wav) != 44+8 {
		t.Fatalf("len(wav) = %d, want 52", len(wav))
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 8000 {
		t.Fatalf("sample rate = %d, want 8000", got)
	}

	var want []byte
	for _, seg := range segs {
		want = append(want, audio.DecodeMuLawToPCM16LE(seg.Raw)...)
	}
	if !bytes.Equal(wav[44:], want) {
		t.Fatalf("pcm payload out of order:\n got % x\nwant % x", wav[44:], want)
	}
}

func TestAssemblePCMPassThrough(t *testing.T) {
	pcm := []byte{1, 0, 2, 0}
	wav, err := Assemble([]conversation.AudioSegment{
		{Raw: pcm, Encoding: audio.EncodingPCM16K},
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d, want 16000", got)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Fatalf("pcm payload = % x, want % x", wav[44:], pcm)
	}
}

func TestAssembleEmpty(t *testing.T) {
	wav, err := Assemble(nil)
	if err != nil {
		t.Fatalf("Assemble(nil) error = %v", err)
	}
	if wav != nil {
		t.Fatalf("Assemble(nil) = %d bytes, want nil", len(wav))
	}
}

func TestAssembleRejectsMixedSampleRates(t *testing.T) {
	_, err := Assemble([]conversation.AudioSegment{
		{Raw: []byte{0xFF}, Encoding: audio.EncodingMuLaw8K},
		{Raw: []byte{0, 0}, Encoding: audio.EncodingPCM16K},
	})
	if err == nil {
		t.Fatalf("Assemble() error = nil, want mixed-rate error")
	}
}

type stubFetcher struct {
	body []byte
	err  error
	got  string
}

func (f *stubFetcher) FetchRecording(_ context.Context, callID string) ([]byte, error) {
	f.got = callID
	return f.body, f.err
}

func TestAssembleWithProviderPrefersHostedRecording(t *testing.T) {
	f := &stubFetcher{body: []byte("hosted-recording")}
	segs := []conversation.AudioSegment{{Raw: []byte{0xFF}, Encoding: audio.EncodingMuLaw8K}}

	got, err := AssembleWithProvider(context.Background(), f, "c1", segs)
	if err != nil {
		t.Fatalf("AssembleWithProvider() error = %v", err)
	}
	if !bytes.Equal(got, f.body) {
		t.Fatalf("result = %q, want hosted recording", got)
	}
	if f.got != "c1" {
		t.Fatalf("fetched call id = %q, want c1", f.got)
	}
}

func TestAssembleWithProviderFallsBackToSegments(t *testing.T) {
	f := &stubFetcher{err: errors.New("not ready")}
	segs := []conversation.AudioSegment{{Raw: []byte{0xFF}, Encoding: audio.EncodingMuLaw8K}}

	got, err := AssembleWithProvider(context.Background(), f, "c1", segs)
	if err != nil {
		t.Fatalf("AssembleWithProvider() error = %v", err)
	}
	if !bytes.HasPrefix(got, []byte("RIFF")) {
		t.Fatalf("fallback result is not a WAV container")
	}

	got, err = AssembleWithProvider(context.Background(), nil, "", segs)
	if err != nil {
		t.Fatalf("AssembleWithProvider(nil fetcher) error = %v", err)
	}
	if !bytes.HasPrefix(got, []byte("RIFF")) {
		t.Fatalf("nil-fetcher result is not a WAV container")
	}
}
