package audio

import "testing"

func TestDecodeMuLawKnownValues(t *testing.T) {
	if got := DecodeMuLawSample(0xFF); got != 0 {
		t.Fatalf("DecodeMuLawSample(0xFF) = %d, want 0", got)
	}
	if got := DecodeMuLawSample(0x7F); got != 0 {
		t.Fatalf("DecodeMuLawSample(0x7F) = %d, want 0", got)
	}
	// Most negative code word decodes to negative full scale.
	if got := DecodeMuLawSample(0x00); got != -32124 {
		t.Fatalf("DecodeMuLawSample(0x00) = %d, want -32124", got)
	}
	if pos, neg := DecodeMuLawSample(0x80), DecodeMuLawSample(0x00); pos != -neg {
		t.Fatalf("sign symmetry broken: decode(0x80) = %d, decode(0x00) = %d", pos, neg)
	}
}

func TestEncodeMuLawKnownValues(t *testing.T) {
	if got := EncodeMuLawSample(0); got != 0xFF {
		t.Fatalf("EncodeMuLawSample(0) = %#x, want 0xFF", got)
	}
	// Values beyond the clip threshold land on the same code word.
	if a, b := EncodeMuLawSample(32767), EncodeMuLawSample(muLawClip); a != b {
		t.Fatalf("EncodeMuLawSample(32767) = %#x, EncodeMuLawSample(clip) = %#x, want equal", a, b)
	}
	// Most negative sample must not overflow during negation.
	if got := EncodeMuLawSample(-32768); got != EncodeMuLawSample(-32767) {
		t.Fatalf("EncodeMuLawSample(-32768) = %#x, want clip code %#x", got, EncodeMuLawSample(-32767))
	}
}

// Every code word must survive a decode/encode/decode cycle unchanged, since
// decode lands exactly on a quantization step.
func TestMuLawQuantizationStable(t *testing.T) {
	for b := 0; b < 256; b++ {
		first := DecodeMuLawSample(byte(b))
		re := EncodeMuLawSample(first)
		second := DecodeMuLawSample(re)
		if first != second {
			t.Fatalf("code %#x: decode = %d, re-decode = %d", b, first, second)
		}
	}
}

func TestEncodeDecodeApproximatesInput(t *testing.T) {
	for _, s := range []int16{1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000} {
		got := DecodeMuLawSample(EncodeMuLawSample(s))
		diff := int32(got) - int32(s)
		if diff < 0 {
			diff = -diff
		}
		// Quantization error grows with the segment; 3% of magnitude plus the
		// smallest step is a safe bound for G.711.
		limit := int32(s)
		if limit < 0 {
			limit = -limit
		}
		limit = limit/32 + 33
		if diff > limit {
			t.Fatalf("sample %d decoded to %d, error %d exceeds %d", s, got, diff, limit)
		}
	}
}

func TestDecodeMuLawToPCM16LE(t *testing.T) {
	out := DecodeMuLawToPCM16LE([]byte{0xFF, 0x00})
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	if out[0] != 0 || out[1] != 0 {
		t.Fatalf("silence decoded to % x, want 00 00", out[:2])
	}
	want := DecodeMuLawSample(0x00)
	got := int16(uint16(out[2]) | uint16(out[3])<<8)
	if got != want {
		t.Fatalf("second sample = %d, want %d", got, want)
	}
}

func TestEncodePCM16LEToMuLawIgnoresOddTail(t *testing.T) {
	out := EncodePCM16LEToMuLaw([]byte{0x00, 0x00, 0x01})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0] != 0xFF {
		t.Fatalf("out[0] = %#x, want 0xFF", out[0])
	}
}
