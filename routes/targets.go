package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"interpserve/logger"
)

// RegisterTargetHandler stores a publish destination and returns its key.
func (s *Server) RegisterTargetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Targets == nil {
		http.Error(w, "Targets store not available", http.StatusServiceUnavailable)
		return
	}

	creds := make(map[string]string)
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	key, err := s.Targets.Register(creds)
	if err != nil {
		logger.Warnf("Rejected target registration: %v", err)
		http.Error(w, fmt.Sprintf("Invalid target: %v", err), http.StatusBadRequest)
		return
	}
	logger.Infof("Registered %s target", creds["type"])
	writeJSON(w, http.StatusOK, map[string]string{"access_key": key})
}
