package routes

import (
	"net/http"
	"path/filepath"
	"strings"
)

// MediaHandler serves GET /media/<id>/<file>, the output of a completed job.
func (s *Server) MediaHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, name, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/media/"), "/")
	if !ok || id == "" || name == "" {
		http.NotFound(w, r)
		return
	}

	snap, found := s.Jobs.Get(id)
	if !found || !snap.Outcome.Succeeded() || filepath.Base(snap.Outcome.OutputPath) != name {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, snap.Outcome.OutputPath)
}
