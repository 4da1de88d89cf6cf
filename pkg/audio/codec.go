package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeBase64 returns the transport-safe text form of arbitrary PCM bytes.
// It is the exact inverse of [DecodeBase64].
func EncodeBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeBase64 decodes text produced by [EncodeBase64].
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return b, nil
}

// Float32ToInt16 scales normalised samples by 32768 and truncates toward zero.
//
// There is no clipping guard: values at or beyond full scale wrap around the
// int16 range exactly like a modulo-2^16 store would, so 1.0 becomes -32768.
// NaN and infinities map to zero. Use [Float32ToInt16Clamped] when clipped
// input must saturate instead.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * 32768
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = int16(int32(math.Mod(math.Trunc(v), 65536)))
	}
	return out
}

// Float32ToInt16Clamped saturates samples to [-1, 1] before scaling by 32767.
func Float32ToInt16Clamped(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case math.IsNaN(float64(s)):
			continue
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Int16ToBytes serialises samples as little-endian PCM16.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 parses little-endian PCM16. A trailing odd byte is ignored.
func BytesToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// BytesToFloat32 parses little-endian IEEE-754 float32 samples, the layout
// browsers use for captured audio. Trailing bytes that do not form a whole
// sample are ignored.
func BytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Int16ToBuffer de-interleaves PCM16 into one normalised float slice per
// channel, dividing every sample by 32768.
//
// Input whose length is not a multiple of 2*channels loses its trailing
// partial frame silently. A non-positive channel count yields an empty buffer.
func Int16ToBuffer(pcm []byte, sampleRate, channels int) Buffer {
	buf := Buffer{SampleRate: sampleRate}
	if channels <= 0 {
		return buf
	}
	frames := len(pcm) / (2 * channels)
	buf.Channels = make([][]float32, channels)
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off:]))
			buf.Channels[c][i] = float32(s) / 32768
		}
	}
	return buf
}

// PCM16 interleaves b back into little-endian PCM16, saturating at full scale.
func (b Buffer) PCM16() []byte {
	frames := b.Frames()
	channels := len(b.Channels)
	out := make([]byte, frames*channels*2)
	for i := range frames {
		for c := range channels {
			v := b.Channels[c][i] * 32768
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			binary.LittleEndian.PutUint16(out[(i*channels+c)*2:], uint16(int16(v)))
		}
	}
	return out
}
