package api

import (
	"context"
	"net/http"

	"github.com/AnsuryX/Autojob-Mvp/internal/career"
	"github.com/AnsuryX/Autojob-Mvp/internal/task"
)

// startTask runs start and answers 202 with the caller's kind task record,
// or the mapped error status.
func (s *Server) startTask(w http.ResponseWriter, r *http.Request, kind string, start func(ctx context.Context) error) {
	if err := start(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	st := s.cfg.Tasks.Snapshot(task.Key(UserFrom(r.Context()), kind))
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleStartDiscovery(w http.ResponseWriter, r *http.Request) {
	var req career.DiscoveryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := UserFrom(r.Context())
	s.startTask(w, r, task.Discovery, func(ctx context.Context) error {
		return s.cfg.Career.StartDiscovery(ctx, user, req)
	})
}

func (s *Server) handleDiscoveryResults(w http.ResponseWriter, r *http.Request) {
	d, ok := s.cfg.Career.LastDiscovery(UserFrom(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "no discovery results yet")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleStartRoadmap(w http.ResponseWriter, r *http.Request) {
	var req career.RoadmapRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := UserFrom(r.Context())
	s.startTask(w, r, task.Roadmap, func(ctx context.Context) error {
		return s.cfg.Career.StartRoadmap(ctx, user, req)
	})
}

func (s *Server) handleRoadmap(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.cfg.Career.LastRoadmap(UserFrom(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "no roadmap yet")
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) handleStartImprove(w http.ResponseWriter, r *http.Request) {
	var req career.ImproveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := UserFrom(r.Context())
	s.startTask(w, r, task.Resume, func(ctx context.Context) error {
		return s.cfg.Career.StartImprove(ctx, user, req)
	})
}

func (s *Server) handleImprovement(w http.ResponseWriter, r *http.Request) {
	imp, ok := s.cfg.Career.LastImprovement(UserFrom(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "no resume rewrite yet")
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := q.Get("role")
	if role == "" {
		writeError(w, http.StatusBadRequest, "role query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Career.Insights(r.Context(), UserFrom(r.Context()), role, q.Get("location")))
}
