package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
)

// FailedMessage is the message recorded on a task whose driver failed.
const FailedMessage = "Operation failed"

// Func is the body of a task driver. It reports intermediate progress through
// rep and returns nil on success.
type Func func(ctx context.Context, rep *Reporter) error

// Reporter lets a running driver publish intermediate progress. Reports made
// after the run reached a terminal state are ignored, so a driver that leaks
// a goroutine cannot overwrite the final record.
type Reporter struct {
	store *Store
	id    string

	mu   sync.Mutex
	done bool
}

// Progress records pct (capped at 99; only the terminal update reaches 100)
// and, when msg is non-empty, the status message.
func (r *Reporter) Progress(pct int, msg string) {
	r.report(min(pct, 99), msg)
}

// Message updates the status message without touching progress.
func (r *Reporter) Message(msg string) {
	r.report(-1, msg)
}

func (r *Reporter) report(pct int, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	var p Patch
	if pct >= 0 {
		p.Progress = Ptr(pct)
	}
	if msg != "" {
		p.Message = Ptr(msg)
	}
	if p.Progress == nil && p.Message == nil {
		return
	}
	r.store.Update(r.id, p)
}

// finish marks the reporter closed. Any later report is dropped.
func (r *Reporter) finish() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
}

// simulation configures optimistic progress while awaiting a remote call.
type simulation struct {
	step     int
	every    time.Duration
	ceiling  int
	messages []string
}

type runConfig struct {
	startMessage string
	doneMessage  string
	sim          *simulation
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithStartMessage sets the message recorded when the run begins.
func WithStartMessage(msg string) RunOption {
	return func(c *runConfig) { c.startMessage = msg }
}

// WithDoneMessage sets the message recorded on success.
func WithDoneMessage(msg string) RunOption {
	return func(c *runConfig) { c.doneMessage = msg }
}

// WithSimulatedProgress advances progress by step every interval, never past
// ceiling, until the driver returns. messages, when given, are applied in
// order with each tick (the last one repeats). The ticker is stopped and
// joined before the terminal update is written, so a simulated tick can never
// follow completed or error. ceiling is capped at 99. A non-positive step or
// interval disables simulation.
func WithSimulatedProgress(step int, every time.Duration, ceiling int, messages ...string) RunOption {
	return func(c *runConfig) {
		if step <= 0 || every <= 0 {
			c.sim = nil
			return
		}
		c.sim = &simulation{
			step:     step,
			every:    every,
			ceiling:  min(max(ceiling, 0), 99),
			messages: messages,
		}
	}
}

func newRunConfig(opts []RunOption) runConfig {
	rc := runConfig{startMessage: "Starting", doneMessage: "Completed"}
	for _, o := range opts {
		o(&rc)
	}
	return rc
}

// Run executes fn synchronously as the driver of task id.
//
// If the task is already running, Run returns ErrAlreadyRunning and leaves
// the record untouched. Otherwise the task is set to running with progress 0,
// fn is executed, and the record ends as completed/100 or as error with a
// non-empty error text and message [FailedMessage] (progress is kept). The
// driver's error is returned to the caller for logging; the task record is
// the primary failure channel.
func (s *Store) Run(ctx context.Context, id string, fn Func, opts ...RunOption) error {
	rc := newRunConfig(opts)
	if _, err := s.begin(id, rc.startMessage); err != nil {
		s.recordOutcome(ctx, id, "rejected", 0)
		return err
	}
	return s.execute(ctx, id, fn, rc)
}

// Start is the asynchronous form of [Store.Run]. The guard is checked
// synchronously so callers can report a conflict immediately; the driver then
// runs in the background, detached from ctx cancellation (task operations
// have no cancel primitive) but keeping its values. Use [Store.Wait] to join
// in-flight runs on shutdown.
func (s *Store) Start(ctx context.Context, id string, fn Func, opts ...RunOption) error {
	rc := newRunConfig(opts)
	if _, err := s.begin(id, rc.startMessage); err != nil {
		s.recordOutcome(ctx, id, "rejected", 0)
		return err
	}
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(runCtx, id, fn, rc)
	}()
	return nil
}

// execute runs fn for a task that begin already marked running.
func (s *Store) execute(ctx context.Context, id string, fn Func, rc runConfig) error {
	start := time.Now()
	_, kind := SplitKey(id)
	ctx, endSpan := observe.StartTaskSpan(ctx, kind, id)
	rep := &Reporter{store: s, id: id}

	simCtx, stopSim := context.WithCancel(ctx)
	var simWG sync.WaitGroup
	if rc.sim != nil {
		simWG.Add(1)
		go func() {
			defer simWG.Done()
			s.simulate(simCtx, rep, *rc.sim)
		}()
	}

	err := callDriver(ctx, id, fn, rep)

	// The real result wins: stop the ticker and wait for it to exit before
	// the terminal state is written.
	stopSim()
	simWG.Wait()
	rep.finish()
	endSpan(err)

	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "unknown error"
		}
		s.Update(id, Patch{
			Status:  Ptr(StatusError),
			Message: Ptr(FailedMessage),
			Error:   Ptr(msg),
		})
		s.logger.Warn("task failed", "task", id, "err", err, "duration", time.Since(start))
		s.recordOutcome(ctx, id, string(StatusError), time.Since(start))
		return err
	}

	s.Update(id, Patch{
		Status:   Ptr(StatusCompleted),
		Progress: Ptr(100),
		Message:  Ptr(rc.doneMessage),
	})
	s.logger.Info("task completed", "task", id, "duration", time.Since(start))
	s.recordOutcome(ctx, id, string(StatusCompleted), time.Since(start))
	return nil
}

// callDriver invokes fn and converts a panic into an error so a faulty driver
// still leaves its task in the error state.
func callDriver(ctx context.Context, id string, fn Func, rep *Reporter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task: %s: driver panic: %v", id, r)
		}
	}()
	return fn(ctx, rep)
}

// simulate advances progress on a fixed cadence until ctx is cancelled.
func (s *Store) simulate(ctx context.Context, rep *Reporter, sim simulation) {
	ticks, stop := s.newTicker(sim.every)
	defer stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}
		if ctx.Err() != nil {
			return
		}
		cur, _ := s.Get(rep.id)
		next := min(cur.Progress+sim.step, sim.ceiling)
		var msg string
		if n := len(sim.messages); n > 0 {
			msg = sim.messages[min(i, n-1)]
		}
		rep.report(next, msg)
	}
}

func (s *Store) recordOutcome(ctx context.Context, id, outcome string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	_, kind := SplitKey(id)
	s.metrics.RecordTaskRun(ctx, kind, outcome, d)
}
