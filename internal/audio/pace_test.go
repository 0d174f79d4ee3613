package audio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestSplitFrames(t *testing.T) {
	frames := SplitFrames(make([]byte, 250), 100)
	if len(frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3", len(frames))
	}
	if len(frames[0]) != 100 || len(frames[1]) != 100 || len(frames[2]) != 50 {
		t.Fatalf("frame sizes = %d/%d/%d, want 100/100/50", len(frames[0]), len(frames[1]), len(frames[2]))
	}
	if SplitFrames(nil, 100) != nil {
		t.Fatalf("SplitFrames(nil) != nil")
	}
	if SplitFrames(make([]byte, 10), 0) != nil {
		t.Fatalf("SplitFrames with zero frame size != nil")
	}
}

func TestSilence(t *testing.T) {
	mu := Silence(EncodingMuLaw8K, 10*time.Millisecond)
	if len(mu) != 80 {
		t.Fatalf("mu-law silence length = %d, want 80", len(mu))
	}
	for i, b := range mu {
		if b != 0xFF {
			t.Fatalf("mu[%d] = %#x, want 0xFF", i, b)
		}
	}
	pcm := Silence(EncodingPCM16K, 10*time.Millisecond)
	if len(pcm) != 320 {
		t.Fatalf("pcm silence length = %d, want 320", len(pcm))
	}
	if pcm[0] != 0 {
		t.Fatalf("pcm[0] = %#x, want 0", pcm[0])
	}
}

func TestPacerSendFramesAndTrailingSilence(t *testing.T) {
	p := Pacer{
		FrameDuration:   10 * time.Millisecond, // 80 bytes at 8 kB/s
		InterFrameDelay: time.Millisecond,
		TrailingSilence: 10 * time.Millisecond,
	}
	buf := bytes.Repeat([]byte{0x42}, 200)

	var sent [][]byte
	err := p.Send(context.Background(), EncodingMuLaw8K, buf, func(frame []byte) error {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		sent = append(sent, cp)
		return nil
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// 80 + 80 + 40 payload frames, then one 80-byte silence tail.
	if len(sent) != 4 {
		t.Fatalf("len(sent) = %d, want 4", len(sent))
	}
	var payload []byte
	for _, f := range sent[:3] {
		payload = append(payload, f...)
	}
	if !bytes.Equal(payload, buf) {
		t.Fatalf("reassembled payload differs from input")
	}
	tail := sent[3]
	if len(tail) != 80 {
		t.Fatalf("len(tail) = %d, want 80", len(tail))
	}
	for i, b := range tail {
		if b != 0xFF {
			t.Fatalf("tail[%d] = %#x, want 0xFF", i, b)
		}
	}
}

func TestPacerSendPropagatesError(t *testing.T) {
	p := Pacer{FrameDuration: 10 * time.Millisecond}
	sendErr := errors.New("channel gone")
	err := p.Send(context.Background(), EncodingMuLaw8K, make([]byte, 100), func([]byte) error {
		return sendErr
	})
	if !errors.Is(err, sendErr) {
		t.Fatalf("Send() error = %v, want wrapped %v", err, sendErr)
	}
}

func TestPacerSendStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Pacer{}.Send(ctx, EncodingMuLaw8K, make([]byte, 10), func([]byte) error {
		t.Fatal("send called after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
}
