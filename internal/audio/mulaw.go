package audio

// G.711 mu-law companding: 8-bit logarithmic samples at 8 kHz. The same
// bias/segment layout is used for both directions so encode/decode round
// trips land on the same quantization step.

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// DecodeMuLawSample expands one mu-law byte into a 16-bit PCM sample.
func DecodeMuLawSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := ((int32(mantissa) << 3) + muLawBias) << exponent
	sample -= muLawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// EncodeMuLawSample compresses one 16-bit PCM sample into a mu-law byte.
func EncodeMuLawSample(s int16) byte {
	sample := int32(s)
	var sign byte
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > muLawClip {
		sample = muLawClip
	}
	sample += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && sample&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((sample >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMuLawToPCM16LE expands a mu-law byte stream into little-endian PCM16.
func DecodeMuLawToPCM16LE(in []byte) []byte {
	out := make([]byte, 0, len(in)*2)
	for _, b := range in {
		s := DecodeMuLawSample(b)
		out = append(out, byte(s), byte(uint16(s)>>8))
	}
	return out
}

// EncodePCM16LEToMuLaw compresses little-endian PCM16 into a mu-law byte
// stream. A trailing odd byte is ignored.
func EncodePCM16LEToMuLaw(pcm []byte) []byte {
	out := make([]byte, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		out = append(out, EncodeMuLawSample(s))
	}
	return out
}
