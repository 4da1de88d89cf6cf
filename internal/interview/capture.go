package interview

import "sync"

// Capture is a microphone source that delivers fixed-size windows of float
// samples in [-1, 1] on its own clock.
type Capture interface {
	// Start begins delivering windows to onWindow, one call at a time and in
	// capture order. It fails with ErrPermissionDenied or ErrNoDevice (or any
	// other error) when the device cannot be acquired.
	Start(onWindow func(samples []float32)) error

	// Stop releases the device. After Stop returns no further windows are
	// delivered. Stop is idempotent.
	Stop() error

	// SampleRate is the capture rate in Hz.
	SampleRate() int
}

// PushCapture is a [Capture] fed from outside the process: the browser owns
// the microphone and streams windows over the interview websocket, and the
// transport hands each one to Push.
type PushCapture struct {
	rate int

	mu       sync.Mutex
	onWindow func([]float32)
	failErr  error

	// deliver serialises callbacks so windows reach the controller in push
	// order even when Push is called from several goroutines.
	deliver sync.Mutex
}

var _ Capture = (*PushCapture)(nil)

// NewPushCapture returns a capture source for windows recorded at sampleRate.
func NewPushCapture(sampleRate int) *PushCapture {
	return &PushCapture{rate: sampleRate}
}

// SampleRate implements [Capture].
func (p *PushCapture) SampleRate() int { return p.rate }

// Fail makes the next Start return err. The browser reports a refused
// permission prompt or a missing device this way. A nil err clears it.
func (p *PushCapture) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// Start implements [Capture].
func (p *PushCapture) Start(onWindow func([]float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	if p.onWindow != nil {
		return ErrCaptureBusy
	}
	p.onWindow = onWindow
	return nil
}

// Stop implements [Capture].
func (p *PushCapture) Stop() error {
	p.mu.Lock()
	p.onWindow = nil
	p.mu.Unlock()

	// Wait for an in-flight delivery so nothing arrives after Stop returns.
	p.deliver.Lock()
	defer p.deliver.Unlock()
	return nil
}

// Push delivers one window. It reports false when capture is not started and
// the window was dropped.
func (p *PushCapture) Push(samples []float32) bool {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	fn := p.onWindow
	p.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(samples)
	return true
}
