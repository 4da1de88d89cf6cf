package playback

import (
	"sync"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/audio"
)

// DefaultFrameDuration is the size of each PCM16 frame emitted by a
// [PacedDevice].
const DefaultFrameDuration = 20 * time.Millisecond

// DeviceOption configures a [PacedDevice].
type DeviceOption func(*PacedDevice)

// WithFrameDuration sets the duration of each emitted frame. Non-positive
// values are ignored.
func WithFrameDuration(d time.Duration) DeviceOption {
	return func(p *PacedDevice) {
		if d > 0 {
			p.frame = d
		}
	}
}

// WithOutputFormat sets the PCM16 format the device emits. Buffers are
// resampled and remixed to it. Defaults to the buffer's own rate, mono.
func WithOutputFormat(f audio.Format) DeviceOption {
	return func(p *PacedDevice) {
		p.format = f
	}
}

// PacedDevice is a [Device] that emits scheduled audio as PCM16 frames on a
// callback, releasing each frame when the clock reaches its position. It
// suits sinks that have no scheduling of their own, such as a websocket to a
// browser.
type PacedDevice struct {
	clock  Clock
	frame  time.Duration
	format audio.Format

	mu  sync.Mutex // serialises out
	out func(frame []byte)
}

var _ Device = (*PacedDevice)(nil)

// NewPacedDevice returns a device that releases frames to out, timed by
// clock. clock must be the same clock the [Scheduler] uses.
func NewPacedDevice(clock Clock, out func(frame []byte), opts ...DeviceOption) *PacedDevice {
	p := &PacedDevice{
		clock:  clock,
		frame:  DefaultFrameDuration,
		format: audio.Format{Channels: 1},
		out:    out,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Schedule implements [Device].
func (p *PacedDevice) Schedule(buf audio.Buffer, at time.Duration) Voice {
	v := &pacedVoice{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	rate := p.format.SampleRate
	if rate <= 0 {
		rate = buf.SampleRate
	}
	channels := max(p.format.Channels, 1)

	pcm := audio.Remix16(buf.PCM16(), len(buf.Channels), channels)
	pcm = audio.Resample16(pcm, channels, buf.SampleRate, rate)

	frameBytes := int(int64(rate)*int64(p.frame)/int64(time.Second)) * channels * 2
	go p.run(v, pcm, frameBytes, at, buf.Duration())
	return v
}

func (p *PacedDevice) run(v *pacedVoice, pcm []byte, frameBytes int, at, dur time.Duration) {
	defer close(v.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	wait := func(until time.Duration) bool {
		d := until - p.clock.Now()
		if d <= 0 {
			select {
			case <-v.stop:
				return false
			default:
				return true
			}
		}
		timer.Reset(d)
		select {
		case <-v.stop:
			return false
		case <-timer.C:
			return true
		}
	}

	if frameBytes <= 0 {
		frameBytes = len(pcm)
	}
	pos := at
	for off := 0; off < len(pcm); off += frameBytes {
		if !wait(pos) {
			return
		}
		end := min(off+frameBytes, len(pcm))
		p.mu.Lock()
		p.out(pcm[off:end])
		p.mu.Unlock()
		pos += p.frame
	}
	wait(at + dur)
}

type pacedVoice struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (v *pacedVoice) Stop() {
	v.once.Do(func() { close(v.stop) })
}

func (v *pacedVoice) Done() <-chan struct{} { return v.done }
