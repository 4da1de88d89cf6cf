package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/AnsuryX/Autojob-Mvp/internal/task"
)

// userTasks returns the caller's record of every task kind, idle for kinds
// never run.
func (s *Server) userTasks(user string) []task.State {
	out := make([]task.State, 0, len(task.Kinds))
	for _, kind := range task.Kinds {
		out = append(out, s.cfg.Tasks.Snapshot(task.Key(user, kind)))
	}
	return out
}

// lookupTask resolves the {id} path value, a task kind, for user.
func (s *Server) lookupTask(user, kind string) (task.State, bool) {
	key := task.Key(user, kind)
	if st, ok := s.cfg.Tasks.Get(key); ok {
		return st, true
	}
	if slices.Contains(task.Kinds, kind) {
		return s.cfg.Tasks.Snapshot(key), true
	}
	return task.State{}, false
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.userTasks(UserFrom(r.Context())))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupTask(UserFrom(r.Context()), r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResetTask(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupTask(UserFrom(r.Context()), r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	st, err := s.cfg.Tasks.Reset(st.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleTaskStream sends the caller's task records, then each update of
// them as it happens, as server-sent events named "task".
func (s *Server) handleTaskStream(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	rc := http.NewResponseController(w)

	// Subscribe before the snapshot so no update falls between the two.
	updates, unsubscribe := s.cfg.Tasks.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(st task.State) bool {
		data, err := json.Marshal(st)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: task\ndata: %s\n\n", data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	for _, st := range s.userTasks(user) {
		if !send(st) {
			return
		}
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if st.Owner != user {
				continue
			}
			if !send(st) {
				return
			}
		}
	}
}
