package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/AnsuryX/Autojob-Mvp/internal/career"
	"github.com/AnsuryX/Autojob-Mvp/internal/command"
)

// newRouter wires each command action to the component that owns it.
// switch_tab and start_interview have no server-side effect: the UI acts on
// the echoed result (and opens /v1/interview for the latter).
func (s *Server) newRouter() *command.Router {
	rt := command.NewRouter()
	noop := func(context.Context, command.Result) error { return nil }
	rt.Handle(command.ActionSwitchTab, noop)
	rt.Handle(command.ActionStartInterview, noop)
	rt.Handle(command.ActionSearchJobs, func(ctx context.Context, r command.Result) error {
		req := career.DiscoveryRequest{Location: r.Params.Location}
		if q := strings.TrimSpace(r.Params.Query); q != "" {
			req.Queries = []string{q}
		}
		return s.cfg.Career.StartDiscovery(ctx, UserFrom(ctx), req)
	})
	rt.Handle(command.ActionImproveResume, func(ctx context.Context, r command.Result) error {
		return s.cfg.Career.StartImprove(ctx, UserFrom(ctx), career.ImproveRequest{Goal: r.Goal})
	})
	return rt
}

type commandRequest struct {
	Text string `json:"text"`
}

type commandResponse struct {
	Result command.Result `json:"result"`

	// Error is set when the action was understood but could not be carried
	// out, e.g. because its task is already running.
	Error string `json:"error,omitempty"`
}

// handleCommand interprets free text and routes the result. Interpretation
// never fails; a routing failure is reported next to the result with the
// status of the underlying error.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res := s.cfg.Commands.Interpret(r.Context(), req.Text)
	if err := s.router.Dispatch(r.Context(), res); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError && !errors.Is(err, command.ErrNoHandler) {
			s.logger.Error("api: command dispatch", "action", res.Action, "err", err)
		}
		writeJSON(w, status, commandResponse{Result: res, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Result: res})
}
