// Package api serves the JSON HTTP API and the interview websocket of the
// career assistant.
//
// Every route reads the caller's identity from the X-User-ID header;
// authentication happens in front of this service. Task routes address the
// caller's records by kind (discovery, roadmap, resume) and never show
// another user's progress.
//
// Routes (Go 1.22 pattern syntax):
//
//	GET  /v1/tasks                  the caller's task records
//	GET  /v1/tasks/stream           server-sent task updates
//	GET  /v1/tasks/{id}             one task record
//	POST /v1/tasks/{id}/reset       return a finished task to idle
//	POST /v1/discovery              start job discovery
//	GET  /v1/discovery/results      last discovery result
//	POST /v1/roadmap                start roadmap generation
//	GET  /v1/roadmap                last roadmap
//	POST /v1/resume/improve         start a resume rewrite
//	GET  /v1/resume/improve         last resume rewrite
//	GET  /v1/insights               market insights for ?role=
//	POST /v1/command                interpret and route a free-text command
//	GET  /v1/profile                read the profile
//	PUT  /v1/profile                replace the profile
//	POST /v1/profile/resume         upload a resume document
//	POST /v1/applications           log an application
//	GET  /v1/applications           list applications
//	GET  /v1/interview              interview websocket
//	GET  /v1/interview/{session}/transcript  archived transcript
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/internal/career"
	"github.com/AnsuryX/Autojob-Mvp/internal/command"
	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
	"github.com/AnsuryX/Autojob-Mvp/internal/resume"
	"github.com/AnsuryX/Autojob-Mvp/internal/task"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
)

// UserHeader carries the caller's identity.
const UserHeader = "X-User-ID"

// maxJSONBody bounds a JSON request body.
const maxJSONBody = 1 << 20

// Interpreter turns free text into a command result. [*command.Dispatcher]
// satisfies it.
type Interpreter interface {
	Interpret(ctx context.Context, text string) command.Result
}

// InterviewConfig holds the limits applied to every interview websocket.
type InterviewConfig struct {
	// Provider opens speech-to-speech sessions. Nil disables /v1/interview.
	Provider s2s.Provider

	// Voice selects a provider voice.
	Voice string

	// CaptureRate is the default sample rate of browser capture windows.
	// Clients may override it with ?rate=. Zero uses 16000.
	CaptureRate int

	// PlaybackRate is the PCM16 rate sent back to the browser. Zero keeps
	// the provider's output rate.
	PlaybackRate int

	// FrameDuration is the length of each playback frame. Zero uses 20ms.
	FrameDuration time.Duration

	MaxDuration  time.Duration
	IdleTimeout  time.Duration
	ClampCapture bool

	// OriginPatterns lists the origins allowed to open the websocket. Empty
	// allows same-origin requests only.
	OriginPatterns []string
}

// Config holds the dependencies of a [Server].
type Config struct {
	Career    *career.Service
	Tasks     *task.Store
	Commands  Interpreter
	Interview InterviewConfig
	Logger    *slog.Logger
	Metrics   *observe.Metrics
}

// Server is the HTTP surface of the service.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router *command.Router
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.Career == nil {
		errs = append(errs, errors.New("career service is required"))
	}
	if cfg.Tasks == nil {
		errs = append(errs, errors.New("task store is required"))
	}
	if cfg.Commands == nil {
		errs = append(errs, errors.New("command interpreter is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interview.CaptureRate <= 0 {
		cfg.Interview.CaptureRate = 16000
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.router = s.newRouter()
	return s, nil
}

// Handler returns the routed API wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	if s.cfg.Metrics == nil {
		return mux
	}
	return observe.Middleware(s.cfg.Metrics)(mux)
}

// Register adds every API route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/tasks", s.withUser(s.handleListTasks))
	mux.HandleFunc("GET /v1/tasks/stream", s.withUser(s.handleTaskStream))
	mux.HandleFunc("GET /v1/tasks/{id}", s.withUser(s.handleGetTask))
	mux.HandleFunc("POST /v1/tasks/{id}/reset", s.withUser(s.handleResetTask))

	mux.HandleFunc("POST /v1/discovery", s.withUser(s.handleStartDiscovery))
	mux.HandleFunc("GET /v1/discovery/results", s.withUser(s.handleDiscoveryResults))
	mux.HandleFunc("POST /v1/roadmap", s.withUser(s.handleStartRoadmap))
	mux.HandleFunc("GET /v1/roadmap", s.withUser(s.handleRoadmap))
	mux.HandleFunc("POST /v1/resume/improve", s.withUser(s.handleStartImprove))
	mux.HandleFunc("GET /v1/resume/improve", s.withUser(s.handleImprovement))
	mux.HandleFunc("GET /v1/insights", s.withUser(s.handleInsights))

	mux.HandleFunc("POST /v1/command", s.withUser(s.handleCommand))

	mux.HandleFunc("GET /v1/profile", s.withUser(s.handleGetProfile))
	mux.HandleFunc("PUT /v1/profile", s.withUser(s.handlePutProfile))
	mux.HandleFunc("POST /v1/profile/resume", s.withUser(s.handleUploadResume))

	mux.HandleFunc("POST /v1/applications", s.withUser(s.handleLogApplication))
	mux.HandleFunc("GET /v1/applications", s.withUser(s.handleListApplications))

	mux.HandleFunc("GET /v1/interview", s.withUser(s.handleInterview))
	mux.HandleFunc("GET /v1/interview/{session}/transcript", s.withUser(s.handleTranscript))
}

type userKey struct{}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the user id stored by WithUser, or "".
func UserFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// withUser rejects requests without an identity and stores it in the request
// context.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			writeError(w, http.StatusUnauthorized, UserHeader+" header is required")
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), id)))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, career.ErrNoProfile):
		return http.StatusNotFound
	case errors.Is(err, career.ErrNoTarget),
		errors.Is(err, career.ErrNoResume),
		errors.Is(err, career.ErrInvalidApplication),
		errors.Is(err, career.ErrUnreadableResume):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resume.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged and their
// detail is withheld from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("api: request failed", "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
