package routes

import (
	"net/http"

	"interpserve/logger"
)

// RecordQueryHandler returns the history record of one job.
func (s *Server) RecordQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Records == nil {
		http.Error(w, "Records store not available", http.StatusServiceUnavailable)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	record, err := s.Records.Get(id)
	if err != nil {
		logger.Errorf("Failed to query record for job %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"id":      id,
			"status":  "not_found",
			"message": "No record found for this job",
		})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// RecordListHandler lists all records, newest first.
func (s *Server) RecordListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Records == nil {
		http.Error(w, "Records store not available", http.StatusServiceUnavailable)
		return
	}

	list, err := s.Records.List()
	if err != nil {
		logger.Errorf("Failed to list records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": list,
		"count":   len(list),
	})
}
