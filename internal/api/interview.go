package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/AnsuryX/Autojob-Mvp/internal/interview"
	"github.com/AnsuryX/Autojob-Mvp/pkg/audio"
	"github.com/AnsuryX/Autojob-Mvp/pkg/audio/playback"
)

const (
	// maxWindowBytes bounds one inbound capture window (one second of
	// 48 kHz float32 mono is 192 KiB).
	maxWindowBytes = 256 << 10

	wsWriteTimeout = 5 * time.Second

	defaultPlaybackRate = 24000
)

// Events sent to the browser as text messages.
type wsEvent struct {
	Type string `json:"type"`

	// ready
	CaptureRate  int `json:"capture_rate,omitempty"`
	PlaybackRate int `json:"playback_rate,omitempty"`

	// state
	State     string `json:"state,omitempty"`
	Status    string `json:"status,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// transcript
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// Control messages received from the browser as text messages.
type wsControl struct {
	Type string `json:"type"` // "start", "stop" or "say"
	Text string `json:"text,omitempty"`

	// CaptureError reports a failed microphone acquisition with "start":
	// "permission_denied", "no_device" or free text.
	CaptureError string `json:"capture_error,omitempty"`
}

// captureError maps a browser capture failure to the controller's errors.
func captureError(code string) error {
	switch code {
	case "":
		return nil
	case "permission_denied":
		return interview.ErrPermissionDenied
	case "no_device":
		return interview.ErrNoDevice
	default:
		return errors.New(code)
	}
}

// handleInterview upgrades to a websocket and runs one interview session on
// it. The server greets with a "ready" event; the browser acquires its
// microphone and sends {"type":"start"} (with capture_error on failure).
// Binary messages from the browser are float32 little-endian capture windows;
// binary messages to the browser are PCM16 playback frames released in real
// time by a paced device. The socket closes when the session ends.
func (s *Server) handleInterview(w http.ResponseWriter, r *http.Request) {
	ic := s.cfg.Interview
	if ic.Provider == nil {
		writeError(w, http.StatusServiceUnavailable, "interview provider is not configured")
		return
	}
	rate := ic.CaptureRate
	if v := r.URL.Query().Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 8000 || n > 192000 {
			writeError(w, http.StatusBadRequest, "rate must be between 8000 and 192000")
			return
		}
		rate = n
	}
	user := UserFrom(r.Context())
	candidate, err := s.cfg.Career.Candidate(r.Context(), user, r.URL.Query().Get("focus"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: ic.OriginPatterns})
	if err != nil {
		s.logger.Warn("api: interview upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxWindowBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws := &interviewSocket{
		conn:   conn,
		ctx:    ctx,
		logger: s.logger.With("user", user),
		ended:  make(chan struct{}),
	}

	playbackRate := ic.PlaybackRate
	if playbackRate <= 0 {
		playbackRate = ic.Provider.Capabilities().OutputSampleRate
	}
	if playbackRate <= 0 {
		playbackRate = defaultPlaybackRate
	}
	clock := playback.NewWallClock()
	device := playback.NewPacedDevice(clock, ws.writeFrame,
		playback.WithFrameDuration(ic.FrameDuration),
		playback.WithOutputFormat(audio.Format{SampleRate: playbackRate, Channels: 1}),
	)
	sched := playback.New(clock, device, playback.WithLogger(ws.logger))
	defer sched.Close()

	capture := interview.NewPushCapture(rate)
	ws.capture = capture
	ws.ctrl = interview.New(interview.Config{
		Provider:      ic.Provider,
		Capture:       capture,
		Player:        sched,
		Voice:         ic.Voice,
		MaxDuration:   ic.MaxDuration,
		IdleTimeout:   ic.IdleTimeout,
		ClampCapture:  ic.ClampCapture,
		OnStateChange: ws.onState,
		OnTranscript:  ws.onTranscript,
		OnInterrupt:   func() { ws.send(wsEvent{Type: "interrupted"}) },
		StopHooks:     []interview.StopHook{s.cfg.Career.ArchiveInterview(user)},
		Logger:        ws.logger,
		Metrics:       s.cfg.Metrics,
	})

	ws.send(wsEvent{Type: "ready", CaptureRate: rate, PlaybackRate: playbackRate})

	startCtx, cancelStart := context.WithCancel(ctx)
	defer cancelStart()
	ws.start = func(captureErr error) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.closing {
			return
		}
		if captureErr != nil {
			capture.Fail(captureErr)
		}
		ws.starting.Add(1)
		go func() {
			defer ws.starting.Done()
			err := ws.ctrl.Start(startCtx, candidate)
			switch {
			case err == nil, errors.Is(err, interview.ErrStopped):
			case errors.Is(err, interview.ErrAlreadyStarted):
				ws.send(wsEvent{Type: "error", Error: err.Error()})
			default:
				// The Error state event already carries the reason.
				ws.end()
			}
		}()
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		ws.readLoop()
	}()

	select {
	case <-readDone:
	case <-ws.ended:
	case <-ctx.Done():
	}

	// Abort a pending connect, then release the session while the socket can
	// still carry the final state.
	ws.mu.Lock()
	ws.closing = true
	ws.mu.Unlock()
	cancelStart()
	ws.starting.Wait()
	ws.ctrl.Stop()
	ws.ctrl.Wait()
	conn.Close(websocket.StatusNormalClosure, "session ended")
	cancel()
	<-readDone
}

// interviewSocket adapts one websocket to an interview controller.
type interviewSocket struct {
	conn    *websocket.Conn
	ctx     context.Context
	logger  *slog.Logger
	capture *interview.PushCapture
	ctrl    *interview.Controller

	// start launches the controller; set by the handler.
	start    func(captureErr error)
	starting sync.WaitGroup
	mu       sync.Mutex
	closing  bool

	sawStart bool // guarded by the controller's ordered OnStateChange calls
	ended    chan struct{}
	endOnce  sync.Once
}

func (ws *interviewSocket) end() {
	ws.endOnce.Do(func() { close(ws.ended) })
}

func (ws *interviewSocket) send(ev wsEvent) {
	ctx, cancel := context.WithTimeout(ws.ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, ws.conn, ev); err != nil && ws.ctx.Err() == nil {
		ws.logger.Debug("api: interview event dropped", "type", ev.Type, "err", err)
	}
}

func (ws *interviewSocket) writeFrame(frame []byte) {
	ctx, cancel := context.WithTimeout(ws.ctx, wsWriteTimeout)
	defer cancel()
	_ = ws.conn.Write(ctx, websocket.MessageBinary, frame)
}

func (ws *interviewSocket) onState(st interview.State, status string) {
	ws.send(wsEvent{Type: "state", State: st.String(), Status: status, SessionID: ws.ctrl.SessionID()})
	switch st {
	case interview.StateConnecting:
		ws.sawStart = true
	case interview.StateIdle, interview.StateError:
		if ws.sawStart {
			ws.end()
		}
	}
}

func (ws *interviewSocket) onTranscript(e interview.Entry) {
	ws.send(wsEvent{Type: "transcript", Role: string(e.Role), Text: e.Text})
}

// readLoop feeds capture windows and control messages until the socket
// closes or the browser asks to stop.
func (ws *interviewSocket) readLoop() {
	for {
		typ, data, err := ws.conn.Read(ws.ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageBinary:
			if len(data)%4 != 0 {
				ws.send(wsEvent{Type: "error", Error: "capture window is not float32 aligned"})
				continue
			}
			ws.capture.Push(audio.BytesToFloat32(data))
		case websocket.MessageText:
			var ctl wsControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				ws.send(wsEvent{Type: "error", Error: "invalid control message"})
				continue
			}
			switch ctl.Type {
			case "start":
				ws.start(captureError(ctl.CaptureError))
			case "stop":
				ws.end()
				return
			case "say":
				if err := ws.ctrl.Say(ctl.Text); err != nil {
					ws.send(wsEvent{Type: "error", Error: err.Error()})
				}
			default:
				ws.send(wsEvent{Type: "error", Error: "unknown control message " + strconv.Quote(ctl.Type)})
			}
		}
	}
}
