package audio

import (
	"context"
	"fmt"
	"time"
)

// Encoding identifies the negotiated wire format of a live audio channel.
type Encoding string

const (
	// EncodingMuLaw8K is 8-bit G.711 mu-law at 8 kHz (telephony providers).
	EncodingMuLaw8K Encoding = "mulaw_8k"
	// EncodingPCM16K is 16-bit little-endian PCM at 16 kHz.
	EncodingPCM16K Encoding = "pcm16_16k"
)

// SampleRate returns the sample rate in Hz for the encoding.
func (e Encoding) SampleRate() int {
	if e == EncodingPCM16K {
		return 16000
	}
	return 8000
}

// BytesPerSecond returns the wire byte rate for the encoding.
func (e Encoding) BytesPerSecond() int {
	if e == EncodingPCM16K {
		return 32000
	}
	return 8000
}

// SilenceByte returns the byte value that represents digital silence.
func (e Encoding) SilenceByte() byte {
	if e == EncodingMuLaw8K {
		// mu-law positive zero.
		return 0xFF
	}
	return 0x00
}

// PCM16LE converts a wire buffer to little-endian PCM16, expanding mu-law
// where needed.
func (e Encoding) PCM16LE(raw []byte) []byte {
	if e == EncodingMuLaw8K {
		return DecodeMuLawToPCM16LE(raw)
	}
	return raw
}

// SplitFrames cuts buf into frames of at most frameBytes, in order. The last
// frame may be short. frameBytes must be positive.
func SplitFrames(buf []byte, frameBytes int) [][]byte {
	if frameBytes <= 0 || len(buf) == 0 {
		return nil
	}
	frames := make([][]byte, 0, len(buf)/frameBytes+1)
	for len(buf) > frameBytes {
		frames = append(frames, buf[:frameBytes])
		buf = buf[frameBytes:]
	}
	frames = append(frames, buf)
	return frames
}

// Silence returns d worth of digital silence in the given encoding.
func Silence(e Encoding, d time.Duration) []byte {
	n := int(float64(e.BytesPerSecond()) * d.Seconds())
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	fill := e.SilenceByte()
	if fill != 0 {
		for i := range out {
			out[i] = fill
		}
	}
	return out
}

// Pacer streams synthesized audio to a channel in fixed-size frames with a
// small inter-frame delay, emulating realistic arrival cadence, then appends
// trailing silence so the remote voice-activity detector sees end-of-speech.
type Pacer struct {
	FrameDuration   time.Duration // audio length per frame, default 1s
	InterFrameDelay time.Duration // pause between frames, default 120ms
	TrailingSilence time.Duration // silence appended after the last frame, default 1.5s
}

func (p Pacer) withDefaults() Pacer {
	if p.FrameDuration <= 0 {
		p.FrameDuration = time.Second
	}
	if p.InterFrameDelay < 0 {
		p.InterFrameDelay = 0
	}
	if p.TrailingSilence < 0 {
		p.TrailingSilence = 0
	}
	return p
}

// DefaultPacer returns the production pacing cadence.
func DefaultPacer() Pacer {
	return Pacer{
		FrameDuration:   time.Second,
		InterFrameDelay: 120 * time.Millisecond,
		TrailingSilence: 1500 * time.Millisecond,
	}
}

// Send pushes buf through send frame by frame, honoring the configured
// cadence. It stops early when ctx is cancelled.
func (p Pacer) Send(ctx context.Context, enc Encoding, buf []byte, send func([]byte) error) error {
	p = p.withDefaults()

	frameBytes := int(float64(enc.BytesPerSecond()) * p.FrameDuration.Seconds())
	if frameBytes <= 0 {
		frameBytes = enc.BytesPerSecond()
	}

	frames := SplitFrames(buf, frameBytes)
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := send(frame); err != nil {
			return fmt.Errorf("send frame %d/%d: %w", i+1, len(frames), err)
		}
		if p.InterFrameDelay > 0 && i < len(frames)-1 {
			if err := sleepCtx(ctx, p.InterFrameDelay); err != nil {
				return err
			}
		}
	}

	if tail := Silence(enc, p.TrailingSilence); len(tail) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := send(tail); err != nil {
			return fmt.Errorf("send trailing silence: %w", err)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
