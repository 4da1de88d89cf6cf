// Package task tracks long-running background operations (job discovery,
// roadmap generation, resume improvement) in a process-wide [Store].
//
// Each operation owns one [State] record addressed by a stable id. Operations
// run on behalf of a user are keyed per owner with [Key], so two users never
// share a record or its running guard. Records are created idle, mutated only
// through merge updates ([Store.Update]) and never deleted; a finished task is
// reset to idle or simply re-run. Any HTTP handler or websocket can read or
// observe any record by id, so a client that navigates away and back always
// sees live progress.
//
// Drivers run through [Store.Run] or [Store.Start], which enforce the
// single-running guard and the running → completed | error lifecycle.
package task

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Task kinds of the career operations.
const (
	Discovery = "discovery"
	Roadmap   = "roadmap"
	Resume    = "resume"
)

// Kinds lists the task kinds every user has, in display order.
var Kinds = []string{Discovery, Roadmap, Resume}

// Key returns the id of the kind task owned by owner. An empty owner yields
// the bare kind.
func Key(owner, kind string) string {
	if owner == "" {
		return kind
	}
	return owner + "/" + kind
}

// SplitKey is the inverse of [Key].
func SplitKey(id string) (owner, kind string) {
	i := strings.LastIndexByte(id, '/')
	if i < 0 {
		return "", id
	}
	return id[:i], id[i+1:]
}

// ErrAlreadyRunning is returned when a run or reset is requested for a task
// whose status is running.
var ErrAlreadyRunning = errors.New("task: already running")

// State is a snapshot of one task record.
type State struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner,omitempty"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the state is completed or error.
func (s State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

// Patch is a partial update. Nil fields leave the current value untouched.
type Patch struct {
	Status   *Status
	Progress *int
	Message  *string
	Error    *string
}

// Ptr returns a pointer to v. It keeps Patch literals short:
//
//	store.Update(task.Roadmap, task.Patch{Message: task.Ptr("Drafting milestones")})
func Ptr[T any](v T) *T { return &v }

// subscriberBuffer is the backlog a subscriber may accumulate. Beyond it,
// updates of a task overwrite that task's newest queued state.
const subscriberBuffer = 64

// Store holds every task record. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[string]*State
	order   []string
	subs    map[int]*subscriber
	nextSub int

	// wg tracks asynchronous runs started with Start.
	wg sync.WaitGroup

	logger  *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time

	// newTicker produces the cadence for simulated progress. Tests replace
	// it with a manually driven channel.
	newTicker func(d time.Duration) (<-chan time.Time, func())
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger used for run lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records run outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the wall clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store with one idle record per id.
func NewStore(ids []string, opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*State),
		subs:    make(map[int]*subscriber),
		logger:  slog.Default(),
		now:     time.Now,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, o := range opts {
		o(s)
	}
	for _, id := range ids {
		s.recordLocked(id)
	}
	return s
}

// recordLocked returns the record for id, creating an idle one if needed.
// Must be called with s.mu held (or during construction).
func (s *Store) recordLocked(id string) *State {
	if r, ok := s.records[id]; ok {
		return r
	}
	r := s.idle(id)
	s.records[id] = r
	s.order = append(s.order, id)
	return r
}

func (s *Store) idle(id string) *State {
	owner, kind := SplitKey(id)
	return &State{ID: id, Owner: owner, Kind: kind, Status: StatusIdle, UpdatedAt: s.now()}
}

// Get returns a snapshot of the task with the given id.
func (s *Store) Get(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return State{}, false
	}
	return *r, true
}

// All returns snapshots of every task in registration order.
func (s *Store) All() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// Snapshot returns the task with the given id, or an idle record for an id
// that was never touched. It does not create the record.
func (s *Store) Snapshot(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		return *r
	}
	return *s.idle(id)
}

// Owned returns snapshots of every task owned by owner in registration order.
func (s *Store) Owned(owner string) []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []State
	for _, id := range s.order {
		if r := s.records[id]; r.Owner == owner {
			out = append(out, *r)
		}
	}
	return out
}

// Update merges p into the task record and returns the resulting state.
// Unknown ids are created on first update.
//
// Progress is clamped to [0, 100] and never decreases, except when the same
// patch starts a new run (status running from a non-running state) or resets
// the task to idle. Either of those also clears the error field.
func (s *Store) Update(id string, p Patch) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(id, p)
}

func (s *Store) applyLocked(id string, p Patch) State {
	r := s.recordLocked(id)

	fresh := false
	if p.Status != nil {
		next := *p.Status
		switch {
		case next == StatusIdle:
			fresh = true
			r.Message = ""
		case next == StatusRunning && r.Status != StatusRunning:
			fresh = true
		}
		if fresh {
			r.Progress = 0
			r.Error = ""
		}
		r.Status = next
	}
	if p.Progress != nil {
		pct := clampProgress(*p.Progress)
		if fresh || pct > r.Progress || r.Status == StatusIdle {
			r.Progress = pct
		}
	}
	if p.Message != nil {
		r.Message = *p.Message
	}
	if p.Error != nil {
		r.Error = *p.Error
	}
	r.UpdatedAt = s.now()

	snap := *r
	s.notifyLocked(snap)
	return snap
}

// Reset returns a task to idle with zero progress. It fails with
// ErrAlreadyRunning while the task is running.
func (s *Store) Reset(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok && r.Status == StatusRunning {
		return *r, ErrAlreadyRunning
	}
	return s.applyLocked(id, Patch{Status: Ptr(StatusIdle)}), nil
}

// begin atomically checks the running guard and marks the task running with
// progress 0. The record is left untouched when the guard trips.
func (s *Store) begin(id, message string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok && r.Status == StatusRunning {
		return *r, ErrAlreadyRunning
	}
	return s.applyLocked(id, Patch{
		Status:   Ptr(StatusRunning),
		Progress: Ptr(0),
		Message:  Ptr(message),
	}), nil
}

// Subscribe returns a channel that receives every state change from now on,
// plus a cancel function that unregisters and closes the channel. Writers
// never block on a subscriber. A subscriber that falls behind by more than
// subscriberBuffer updates sees intermediate states of a task coalesced, but
// always receives the latest state of every task, terminal ones included.
func (s *Store) Subscribe() (<-chan State, func()) {
	sub := &subscriber{
		out:   make(chan State),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		index: make(map[string]int),
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()
	go sub.run()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.out, cancel
}

func (s *Store) notifyLocked(st State) {
	for id, sub := range s.subs {
		if sub.push(st) {
			s.logger.Debug("task subscriber lagging, update coalesced",
				"task", st.ID, "subscriber", id)
		}
	}
}

// subscriber queues updates for one Subscribe caller and feeds them to out
// from its own goroutine.
type subscriber struct {
	out  chan State
	wake chan struct{}
	done chan struct{}

	mu      sync.Mutex
	pending []State
	// index maps a task id to the position of its newest queued state.
	index map[string]int
}

// push queues st and reports whether it replaced an older queued state.
func (sub *subscriber) push(st State) (coalesced bool) {
	sub.mu.Lock()
	if i, ok := sub.index[st.ID]; ok && len(sub.pending) >= subscriberBuffer {
		sub.pending[i] = st
		coalesced = true
	} else {
		sub.index[st.ID] = len(sub.pending)
		sub.pending = append(sub.pending, st)
	}
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
	return coalesced
}

// pop removes the oldest queued state.
func (sub *subscriber) pop() (State, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.pending) == 0 {
		return State{}, false
	}
	st := sub.pending[0]
	sub.pending = sub.pending[1:]
	for id, i := range sub.index {
		if i == 0 {
			delete(sub.index, id)
		} else {
			sub.index[id] = i - 1
		}
	}
	return st, true
}

func (sub *subscriber) run() {
	defer close(sub.out)
	for {
		st, ok := sub.pop()
		if !ok {
			select {
			case <-sub.wake:
				continue
			case <-sub.done:
				return
			}
		}
		select {
		case <-sub.done:
			return
		default:
		}
		select {
		case sub.out <- st:
		case <-sub.done:
			return
		}
	}
}

// Wait blocks until every run launched with Start has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

func clampProgress(p int) int {
	return min(max(p, 0), 100)
}
