package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM16 stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FormatConverter converts chunks to a target format. It logs once on the
// first format mismatch and once on the first misaligned chunk.
// Create one per stream; it is not meant to be shared across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns c in the target format. A chunk already in the target format
// is returned unchanged. Misaligned chunks come back with nil Data.
// Resampling runs before channel conversion so mono targets never pay for a
// stereo resample.
func (fc *FormatConverter) Convert(c Chunk) Chunk {
	if c.Channels <= 0 || len(c.Data)%(2*c.Channels) != 0 {
		fc.warnedCorrupt.Do(func() {
			slog.Warn("audio: dropping misaligned pcm chunk",
				"bytes", len(c.Data),
				"format", Format{c.SampleRate, c.Channels}.String(),
			)
		})
		return Chunk{SampleRate: fc.Target.SampleRate, Channels: fc.Target.Channels, Seq: c.Seq}
	}
	if c.SampleRate == fc.Target.SampleRate && c.Channels == fc.Target.Channels {
		return c
	}

	fc.warnedMismatch.Do(func() {
		slog.Debug("audio: converting stream format",
			"from", Format{c.SampleRate, c.Channels}.String(),
			"to", fc.Target.String(),
		)
	})

	pcm := Resample16(c.Data, c.Channels, c.SampleRate, fc.Target.SampleRate)
	pcm = Remix16(pcm, c.Channels, fc.Target.Channels)
	return Chunk{
		Data:       pcm,
		SampleRate: fc.Target.SampleRate,
		Channels:   fc.Target.Channels,
		Seq:        c.Seq,
	}
}

// Remix16 converts interleaved PCM16 between channel counts. Mono is
// duplicated into every output channel; multi-channel input is averaged down
// to mono first. Identical counts return pcm unchanged.
func Remix16(pcm []byte, srcChannels, dstChannels int) []byte {
	if srcChannels == dstChannels || srcChannels <= 0 || dstChannels <= 0 {
		return pcm
	}
	frames := len(pcm) / (2 * srcChannels)
	out := make([]byte, frames*dstChannels*2)
	for i := range frames {
		var sum int32
		for c := range srcChannels {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[(i*srcChannels+c)*2:])))
		}
		avg := sum / int32(srcChannels)
		for c := range dstChannels {
			binary.LittleEndian.PutUint16(out[(i*dstChannels+c)*2:], uint16(int16(avg)))
		}
	}
	return out
}

// Resample16 resamples interleaved PCM16 from srcRate to dstRate using linear
// interpolation per channel. Equal or invalid rates return pcm unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	frameBytes := 2 * channels
	srcFrames := len(pcm) / frameBytes
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	sample := func(frame, ch int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[frame*frameBytes+ch*2:])))
	}

	out := make([]byte, dstFrames*frameBytes)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for c := range channels {
			v := sample(idx, c)*(1-frac) + sample(next, c)*frac
			binary.LittleEndian.PutUint16(out[i*frameBytes+c*2:], uint16(int16(v)))
		}
	}
	return out
}
