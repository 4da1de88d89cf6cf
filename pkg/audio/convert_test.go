package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/AnsuryX/Autojob-Mvp/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func equalSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRemix16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		src, dst int
		want     []int16
	}{
		{name: "mono to stereo", in: []int16{100, 200, 300}, src: 1, dst: 2, want: []int16{100, 100, 200, 200, 300, 300}},
		{name: "stereo to mono", in: []int16{100, 200, -100, -200}, src: 2, dst: 1, want: []int16{150, -150}},
		{name: "stereo full scale", in: []int16{32767, 32767}, src: 2, dst: 1, want: []int16{32767}},
		{name: "same count", in: []int16{1, 2}, src: 1, dst: 1, want: []int16{1, 2}},
		{name: "partial frame dropped", in: []int16{10, 20, 30}, src: 2, dst: 1, want: []int16{15}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Remix16(samplesToBytes(tc.in), tc.src, tc.dst))
			equalSamples(t, got, tc.want)
		})
	}
}

func TestResample16_SameRate(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.Resample16(pcm, 1, 24000, 24000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResample16_Upsample(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{0, 100})
	out := bytesToSamples(audio.Resample16(pcm, 1, 24000, 48000))
	// 2 source frames at 2x become 4 output frames; the midpoint interpolates.
	equalSamples(t, out, []int16{0, 50, 100, 100})
}

func TestResample16_Downsample(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes(make([]int16, 480))
	out := audio.Resample16(pcm, 1, 48000, 16000)
	if got := len(out) / 2; got != 160 {
		t.Errorf("frames = %d, want 160", got)
	}
}

func TestResample16_Stereo(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{10, -10, 20, -20})
	out := bytesToSamples(audio.Resample16(pcm, 2, 8000, 16000))
	equalSamples(t, out, []int16{10, -10, 15, -15, 20, -20, 20, -20})
}

func TestResample16_InvalidRate(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{1, 2, 3})
	for _, rates := range [][2]int{{0, 16000}, {16000, 0}, {-1, 8000}} {
		out := audio.Resample16(pcm, 1, rates[0], rates[1])
		if len(out) != len(pcm) {
			t.Errorf("rates %v: expected passthrough, got %d bytes", rates, len(out))
		}
	}
}

func TestFormatConverter_NoOp(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	in := audio.Chunk{Data: samplesToBytes([]int16{1, 2, 3}), SampleRate: 16000, Channels: 1, Seq: 7}
	out := conv.Convert(in)
	if &out.Data[0] != &in.Data[0] {
		t.Error("expected matching format to return the same backing array")
	}
	if out.Seq != 7 {
		t.Errorf("Seq = %d, want 7", out.Seq)
	}
}

func TestFormatConverter_CaptureToModelInput(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	// 20ms of 48kHz stereo.
	in := audio.Chunk{Data: samplesToBytes(make([]int16, 960*2)), SampleRate: 48000, Channels: 2, Seq: 3}
	out := conv.Convert(in)
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Fatalf("format = %dHz/%dch, want 16000Hz/1ch", out.SampleRate, out.Channels)
	}
	if got := len(out.Data) / 2; got != 320 {
		t.Errorf("samples = %d, want 320", got)
	}
	if out.Seq != 3 {
		t.Errorf("Seq = %d, want 3", out.Seq)
	}
}

func TestFormatConverter_Misaligned(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	for _, in := range []audio.Chunk{
		{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1},
		{Data: []byte{1, 2}, SampleRate: 16000, Channels: 2},
		{Data: []byte{1, 2}, SampleRate: 16000, Channels: 0},
	} {
		if out := conv.Convert(in); out.Data != nil {
			t.Errorf("Convert(%v) data = %v, want nil", in, out.Data)
		}
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()
	tests := map[audio.Format]string{
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 44100, Channels: 6}: "44100Hz 6ch",
	}
	for f, want := range tests {
		if got := f.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", f, got, want)
		}
	}
}
