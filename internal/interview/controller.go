// Package interview runs live mock-interview sessions against a remote
// speech-to-speech model.
//
// A [Controller] owns one session at a time and moves through
//
//	Idle → Connecting → Live → Idle | Error
//
// It acquires microphone capture, opens the remote session with instructions
// built from the candidate profile, streams PCM16 capture windows out in
// capture order, and applies inbound events: transcript text is appended to an
// ordered [Transcript], audio is decoded and handed to the gapless playback
// scheduler, and an interruption (barge-in) discards all buffered playback.
//
// Stop is always safe and idempotent. Every exit path (user stop, remote
// close, remote error, watchdog expiry) releases capture, closes the session
// and interrupts playback. There is no automatic reconnect.
//
// Capture and playback keep independent clocks: windows arrive at the capture
// rate (typically 16 kHz) while model audio plays at the provider's output
// rate (typically 24 kHz).
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
	"github.com/AnsuryX/Autojob-Mvp/pkg/audio"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
)

const (
	defaultOutputRate  = 24000
	defaultMaxDuration = 15 * time.Minute
	defaultIdleTimeout = 2 * time.Minute
	stopHookTimeout    = 30 * time.Second
)

// Player is the playback side of a session. [*playback.Scheduler] satisfies
// it.
type Player interface {
	Enqueue(buf audio.Buffer) (start time.Duration, ok bool)
	Interrupt()
}

// Summary describes a finished session. It is passed to stop hooks.
type Summary struct {
	SessionID  string
	Candidate  Candidate
	StartedAt  time.Time
	EndedAt    time.Time
	FinalState State
	Status     string
	Transcript []Entry
}

// StopHook persists or forwards a finished session (transcript log, archive).
// Hooks run after every resource is released; a failing hook is logged and
// never affects the state transition.
type StopHook func(ctx context.Context, s Summary) error

// Config holds the dependencies and limits of a [Controller].
type Config struct {
	// Provider opens remote sessions. Required.
	Provider s2s.Provider

	// Capture is the microphone source. Required.
	Capture Capture

	// Player receives decoded model audio. Required.
	Player Player

	// Voice selects a provider voice. Empty uses the provider default.
	Voice string

	// MaxDuration ends a live session after this long. Zero uses 15 minutes;
	// negative disables the limit.
	MaxDuration time.Duration

	// IdleTimeout ends a live session when the model sends nothing for this
	// long. Zero uses 2 minutes; negative disables it.
	IdleTimeout time.Duration

	// ClampCapture saturates out-of-range capture samples instead of letting
	// them wrap around during PCM16 conversion.
	ClampCapture bool

	// OnStateChange, if set, is called after every transition with the new
	// state and status text. Calls are serialised and ordered. It must not
	// call Start or Stop.
	OnStateChange func(State, string)

	// OnTranscript, if set, is called for every appended transcript entry.
	OnTranscript func(Entry)

	// OnInterrupt, if set, is called whenever playback is interrupted by the
	// remote side.
	OnInterrupt func()

	// StopHooks run once per session that reached Live, after teardown.
	StopHooks []StopHook

	Logger  *slog.Logger
	Metrics *observe.Metrics
	Now     func() time.Time
}

type stateChange struct {
	state  State
	status string
}

// Controller drives one interview session at a time. All methods are safe for
// concurrent use.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	status       string
	gen          uint64
	session      s2s.SessionHandle
	captureHeld  bool
	inputRate    int
	outputRate   int
	sessionID    string
	candidate    Candidate
	startedAt    time.Time
	lastActivity time.Time
	transcript   *Transcript
	stopWatch    context.CancelFunc
	stopConnect  context.CancelFunc

	// pending holds state changes not yet delivered to OnStateChange.
	pending []stateChange

	// apply serialises inbound event application with teardown, so no event
	// of a torn-down session reaches the player after its final interrupt.
	apply sync.Mutex

	// send keeps outbound audio in capture order.
	send sync.Mutex

	// notify orders OnStateChange calls.
	notify sync.Mutex

	wg sync.WaitGroup
}

// New returns an idle controller.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = defaultMaxDuration
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Controller{
		cfg:        cfg,
		logger:     cfg.Logger,
		state:      StateIdle,
		status:     "Ready",
		transcript: &Transcript{},
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the user-facing status text.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the id of the current or most recent session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Transcript returns a snapshot of the current or most recent session's
// transcript.
func (c *Controller) Transcript() []Entry {
	c.mu.Lock()
	t := c.transcript
	c.mu.Unlock()
	return t.Entries()
}

// Start opens a session for candidate. It is allowed from Idle and Error and
// returns ErrAlreadyStarted otherwise. On failure the controller ends in
// Error with a status explaining why, and every acquired resource is
// released.
func (c *Controller) Start(ctx context.Context, candidate Candidate) error {
	if c.cfg.Provider == nil || c.cfg.Capture == nil || c.cfg.Player == nil {
		return errors.New("interview: controller is missing provider, capture or player")
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateLive {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.gen++
	gen := c.gen
	c.sessionID = uuid.NewString()
	c.candidate = candidate
	c.transcript = &Transcript{}
	connectCtx, stopConnect := context.WithCancel(ctx)
	defer stopConnect()
	c.stopConnect = stopConnect
	c.setStateLocked(StateConnecting, "Connecting")
	c.mu.Unlock()
	c.flush()

	// Acquire capture first: no microphone, no session.
	if err := c.cfg.Capture.Start(c.onWindow(gen)); err != nil {
		if !c.fail(gen, captureStatus(err)) {
			return ErrStopped
		}
		return fmt.Errorf("interview: acquire capture: %w", err)
	}
	c.mu.Lock()
	if c.gen != gen {
		// Stop ran while capture was starting; it did not know we held it.
		c.mu.Unlock()
		_ = c.cfg.Capture.Stop()
		return ErrStopped
	}
	c.captureHeld = true
	c.mu.Unlock()

	caps := c.cfg.Provider.Capabilities()
	connectStart := time.Now()
	sess, err := c.cfg.Provider.Connect(connectCtx, s2s.SessionConfig{
		Instructions: BuildInstructions(candidate),
		Voice:        c.cfg.Voice,
	})
	if m := c.cfg.Metrics; m != nil {
		m.S2SConnectDuration.Record(ctx, time.Since(connectStart).Seconds())
	}
	if err != nil {
		if !c.fail(gen, "Connection failed: "+err.Error()) {
			return ErrStopped
		}
		if m := c.cfg.Metrics; m != nil {
			m.RecordProviderError(ctx, "s2s", "connect")
		}
		return fmt.Errorf("interview: connect: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		_ = sess.Close()
		return ErrStopped
	}
	c.stopConnect = nil
	c.session = sess
	if sc, ok := sess.(s2s.SessionCapabilities); ok {
		caps = sc.Capabilities()
	}
	c.inputRate = caps.InputSampleRate
	c.outputRate = caps.OutputSampleRate
	if c.outputRate <= 0 {
		c.outputRate = defaultOutputRate
	}
	now := c.cfg.Now()
	c.startedAt = now
	c.lastActivity = now
	watchCtx, stopWatch := context.WithCancel(context.Background())
	c.stopWatch = stopWatch
	sessionID := c.sessionID
	outRate := c.outputRate
	c.setStateLocked(StateLive, "Live")
	c.wg.Add(2)
	c.mu.Unlock()
	c.flush()

	if m := c.cfg.Metrics; m != nil {
		m.ActiveSessions.Add(ctx, 1)
	}
	c.logger.Info("interview session live",
		"session_id", sessionID,
		"input_rate", caps.InputSampleRate,
		"output_rate", outRate,
	)

	go c.readEvents(gen, sess)
	go c.watch(watchCtx, gen)
	return nil
}

// Say sends typed text into the live session.
func (c *Controller) Say(text string) error {
	c.mu.Lock()
	sess, live, transcript := c.session, c.state == StateLive, c.transcript
	c.mu.Unlock()
	if !live || sess == nil {
		return ErrNotLive
	}
	if err := sess.SendText(text); err != nil {
		return fmt.Errorf("interview: send text: %w", err)
	}
	transcript.Append(Entry{Role: s2s.RoleUser, Text: text, At: c.cfg.Now()})
	return nil
}

// Stop ends the session from any state and returns to Idle. It is idempotent.
func (c *Controller) Stop() {
	c.teardown(0, false, StateIdle, "Stopped")
}

// Wait blocks until the background goroutines of every session have exited.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// onWindow returns the capture callback bound to session generation gen.
// Windows arriving before the session is live, or after it ended, are
// dropped.
func (c *Controller) onWindow(gen uint64) func([]float32) {
	return func(samples []float32) {
		c.send.Lock()
		defer c.send.Unlock()

		c.mu.Lock()
		if c.gen != gen || c.state != StateLive {
			c.mu.Unlock()
			return
		}
		sess := c.session
		inRate := c.inputRate
		c.mu.Unlock()

		var pcm []int16
		if c.cfg.ClampCapture {
			pcm = audio.Float32ToInt16Clamped(samples)
		} else {
			pcm = audio.Float32ToInt16(samples)
		}
		data := audio.Int16ToBytes(pcm)
		if capRate := c.cfg.Capture.SampleRate(); inRate > 0 && capRate > 0 && capRate != inRate {
			data = audio.Resample16(data, 1, capRate, inRate)
		}
		if len(data) == 0 {
			return
		}

		if err := sess.SendAudio(data); err != nil {
			c.logger.Debug("interview: capture window not sent", "err", err)
			if m := c.cfg.Metrics; m != nil {
				m.RecordProviderError(context.Background(), "s2s", "send_audio")
			}
			return
		}
		if m := c.cfg.Metrics; m != nil {
			m.AudioFramesSent.Add(context.Background(), 1)
		}
	}
}

// readEvents applies inbound events until the session's stream closes.
func (c *Controller) readEvents(gen uint64, sess s2s.SessionHandle) {
	defer c.wg.Done()

	for ev := range sess.Events() {
		c.applyEvent(gen, ev)
	}

	if err := sess.Err(); err != nil {
		c.logger.Warn("interview session failed", "err", err)
		if m := c.cfg.Metrics; m != nil {
			m.RecordProviderError(context.Background(), "s2s", "session")
		}
		c.teardown(gen, true, StateError, "Connection lost: "+err.Error())
		return
	}
	c.teardown(gen, true, StateIdle, "Session ended")
}

// applyEvent applies one inbound event in the order text, audio, interrupt.
func (c *Controller) applyEvent(gen uint64, ev s2s.Event) {
	c.apply.Lock()
	defer c.apply.Unlock()

	c.mu.Lock()
	if c.gen != gen || c.state != StateLive {
		c.mu.Unlock()
		return
	}
	c.lastActivity = c.cfg.Now()
	rate := c.outputRate
	transcript := c.transcript
	c.mu.Unlock()

	if ev.Text != "" {
		e := Entry{Role: ev.Role, Text: ev.Text, At: c.cfg.Now()}
		if e.Role == "" {
			e.Role = s2s.RoleModel
		}
		if transcript.Append(e) && c.cfg.OnTranscript != nil {
			c.cfg.OnTranscript(e)
		}
	}

	if len(ev.Audio) > 0 {
		buf := audio.Int16ToBuffer(ev.Audio, rate, 1)
		if _, ok := c.cfg.Player.Enqueue(buf); ok {
			if m := c.cfg.Metrics; m != nil {
				m.AudioFramesReceived.Add(context.Background(), 1)
			}
		}
	}

	if ev.Interrupted {
		c.cfg.Player.Interrupt()
		if m := c.cfg.Metrics; m != nil {
			m.PlaybackInterruptions.Add(context.Background(), 1)
		}
		if c.cfg.OnInterrupt != nil {
			c.cfg.OnInterrupt()
		}
	}
}

// watch enforces the maximum session duration and the idle timeout.
func (c *Controller) watch(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	var limit <-chan time.Time
	if c.cfg.MaxDuration > 0 {
		t := time.NewTimer(c.cfg.MaxDuration)
		defer t.Stop()
		limit = t.C
	}
	var idle <-chan time.Time
	if c.cfg.IdleTimeout > 0 {
		tick := time.NewTicker(idleCheckInterval(c.cfg.IdleTimeout))
		defer tick.Stop()
		idle = tick.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-limit:
			c.logger.Info("interview session reached its time limit", "limit", c.cfg.MaxDuration)
			c.teardown(gen, true, StateIdle, "Session time limit reached")
			return
		case <-idle:
			c.mu.Lock()
			quiet := c.cfg.Now().Sub(c.lastActivity)
			c.mu.Unlock()
			if quiet >= c.cfg.IdleTimeout {
				c.logger.Info("interview session idle", "quiet", quiet)
				c.teardown(gen, true, StateIdle, "Session ended after inactivity")
				return
			}
		}
	}
}

// fail moves a connecting session of generation gen to Error and releases
// capture if it was acquired. It reports false when gen is stale, meaning Stop
// already cleaned up.
func (c *Controller) fail(gen uint64, status string) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.gen++
	held := c.captureHeld
	c.captureHeld = false
	c.stopConnect = nil
	c.setStateLocked(StateError, status)
	c.mu.Unlock()

	if held {
		_ = c.cfg.Capture.Stop()
	}
	c.flush()
	c.logger.Warn("interview session failed to start", "status", status)
	return true
}

// teardown ends the current session and moves to final. When matchGen is
// set, it only acts if gen is still the current generation, so a stale
// watchdog or reader cannot end a newer session.
func (c *Controller) teardown(gen uint64, matchGen bool, final State, status string) {
	c.mu.Lock()
	if matchGen && c.gen != gen {
		c.mu.Unlock()
		return
	}
	prev := c.state
	if prev == StateIdle && final == StateIdle {
		// Nothing to do; Stop on an idle controller is a no-op.
		c.mu.Unlock()
		return
	}
	c.gen++
	sess := c.session
	c.session = nil
	held := c.captureHeld
	c.captureHeld = false
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	if c.stopConnect != nil {
		c.stopConnect()
		c.stopConnect = nil
	}
	summary := Summary{
		SessionID:  c.sessionID,
		Candidate:  c.candidate,
		StartedAt:  c.startedAt,
		EndedAt:    c.cfg.Now(),
		FinalState: final,
		Status:     status,
	}
	transcript := c.transcript
	c.setStateLocked(final, status)
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			c.logger.Debug("interview: close session", "err", err)
		}
	}
	if held {
		if err := c.cfg.Capture.Stop(); err != nil {
			c.logger.Debug("interview: release capture", "err", err)
		}
	}
	c.apply.Lock()
	c.cfg.Player.Interrupt()
	c.apply.Unlock()
	c.flush()

	if prev != StateLive {
		return
	}
	if m := c.cfg.Metrics; m != nil {
		m.ActiveSessions.Add(context.Background(), -1)
	}
	summary.Transcript = transcript.Entries()
	c.logger.Info("interview session ended",
		"session_id", summary.SessionID,
		"state", final.String(),
		"status", status,
		"entries", len(summary.Transcript),
		"duration", summary.EndedAt.Sub(summary.StartedAt),
	)
	c.runStopHooks(summary)
}

func (c *Controller) runStopHooks(s Summary) {
	if len(c.cfg.StopHooks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopHookTimeout)
	defer cancel()
	for _, hook := range c.cfg.StopHooks {
		if err := hook(ctx, s); err != nil {
			c.logger.Warn("interview stop hook failed", "session_id", s.SessionID, "err", err)
		}
	}
}

// setStateLocked records a transition. Must be called with c.mu held; the
// observer is invoked later by flush, outside c.mu.
func (c *Controller) setStateLocked(s State, status string) {
	c.state = s
	c.status = status
	if c.cfg.OnStateChange != nil {
		c.pending = append(c.pending, stateChange{state: s, status: status})
	}
}

// flush delivers pending state changes to OnStateChange in transition order.
// Must be called without c.mu held.
func (c *Controller) flush() {
	if c.cfg.OnStateChange == nil {
		return
	}
	c.notify.Lock()
	defer c.notify.Unlock()
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ch := range pending {
		c.cfg.OnStateChange(ch.state, ch.status)
	}
}

// idleCheckInterval is how often the watchdog compares the last activity
// against timeout: a quarter of it, between 1ms and 1s.
func idleCheckInterval(timeout time.Duration) time.Duration {
	return max(min(timeout/4, time.Second), time.Millisecond)
}
