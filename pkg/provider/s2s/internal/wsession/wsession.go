// Package wsession is the websocket plumbing shared by the realtime s2s
// providers: one receive goroutine that owns the event channel, JSON writes,
// optional keepalive pings and idempotent close.
package wsession

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
)

const (
	// readLimit admits model audio frames, which exceed the library's 32 KiB
	// default.
	readLimit   = 4 << 20
	eventBuffer = 64
	pingTimeout = 5 * time.Second
)

// Dial opens a websocket to url with the given headers.
func Dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// Handler translates one inbound frame into events via [Session.Emit]. It
// returns false to end the session, after recording the reason with
// [Session.Fail] when the end is an error.
type Handler func(frame []byte) bool

// Session implements everything of [s2s.SessionHandle] except the send
// methods, which depend on the provider's wire format.
type Session struct {
	conn      *websocket.Conn
	prefix    string
	closedErr error
	events    chan s2s.Event

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

// New wraps conn. prefix labels transport errors ("gemini", "openai");
// closedErr is returned by writes after Close.
func New(conn *websocket.Conn, prefix string, closedErr error) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:      conn,
		prefix:    prefix,
		closedErr: closedErr,
		events:    make(chan s2s.Event, eventBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Conn exposes the connection for handshakes that precede [Session.Start].
func (s *Session) Conn() *websocket.Conn { return s.conn }

// Start runs the receive loop in the background. Frames that are not valid
// JSON are dropped before they reach h.
func (s *Session) Start(h Handler) {
	go s.receive(h)
}

// Keepalive pings the peer every interval until the session closes.
func (s *Session) Keepalive(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(s.ctx, pingTimeout)
				_ = s.conn.Ping(ctx)
				cancel()
			}
		}
	}()
}

func (s *Session) receive(h Handler) {
	defer close(s.events)
	for {
		_, frame, err := s.conn.Read(s.ctx)
		if err != nil {
			// Local Close cancels ctx and is a clean end, as is a normal
			// close from the peer.
			if s.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.Fail(fmt.Errorf("%s: read: %w", s.prefix, err))
			}
			return
		}
		if !json.Valid(frame) {
			continue
		}
		if !h(frame) {
			s.conn.Close(websocket.StatusNormalClosure, "session ended")
			return
		}
	}
}

// WriteJSON sends v as one text frame.
func (s *Session) WriteJSON(v any) error {
	if s.isClosed() {
		return s.closedErr
	}
	if err := wsjson.Write(s.ctx, s.conn, v); err != nil {
		return fmt.Errorf("%s: write: %w", s.prefix, err)
	}
	return nil
}

// Emit delivers ev in order. It returns false once the session is closing.
func (s *Session) Emit(ev s2s.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Fail records err as the reason the session ended. The first call wins.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Events implements [s2s.SessionHandle].
func (s *Session) Events() <-chan s2s.Event { return s.events }

// Err implements [s2s.SessionHandle].
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements [s2s.SessionHandle].
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

// Abort tears down a session whose handshake failed. Start must not have
// been called.
func (s *Session) Abort() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.conn.Close(websocket.StatusInternalError, "setup failed")
}
