package api

import (
	"errors"
	"net/http"

	"github.com/AnsuryX/Autojob-Mvp/internal/career"
	"github.com/AnsuryX/Autojob-Mvp/internal/resume"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Career.Profile(r.Context(), UserFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p store.Profile
	if !decodeJSON(w, r, &p) {
		return
	}
	saved, err := s.cfg.Career.SaveProfile(r.Context(), UserFrom(r.Context()), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleUploadResume accepts a multipart form with a "file" part and an
// optional "track" field.
func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, resume.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := resume.ReadLimited(file)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	track, err := s.cfg.Career.AttachResume(r.Context(), UserFrom(r.Context()), career.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Track:       r.FormValue("track"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

func (s *Server) handleLogApplication(w http.ResponseWriter, r *http.Request) {
	var a store.Application
	if !decodeJSON(w, r, &a) {
		return
	}
	saved, err := s.cfg.Career.LogApplication(r.Context(), UserFrom(r.Context()), a)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.cfg.Career.ListApplications(r.Context(), UserFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	entries, err := s.cfg.Career.Transcript(r.Context(), r.PathValue("session"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := UserFrom(r.Context())
	out := make([]store.TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		if e.UserID == user {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
