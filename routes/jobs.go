package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"interpserve/job"
	"interpserve/logger"
	"interpserve/pipeline"
	"interpserve/settings"
)

// JobStatusResponse represents the job status response
type JobStatusResponse struct {
	ID          string             `json:"id"`
	State       string             `json:"state"`
	Outcome     string             `json:"outcome,omitempty"`
	Message     string             `json:"message,omitempty"`
	Progress    string             `json:"progress,omitempty"`
	OutputURL   string             `json:"output_url,omitempty"`
	Published   []string           `json:"published,omitempty"`
	Params      settings.Overrides `json:"params"`
	SubmittedAt time.Time          `json:"submitted_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
}

func statusResponse(s job.Snapshot) JobStatusResponse {
	resp := JobStatusResponse{
		ID:          s.ID,
		State:       s.State.String(),
		Progress:    s.Progress,
		Published:   s.Published,
		Params:      s.Spec.Params,
		SubmittedAt: s.SubmittedAt,
	}
	if !s.StartedAt.IsZero() {
		resp.StartedAt = &s.StartedAt
	}
	if s.State.Finished() {
		resp.Outcome = s.Outcome.Kind.String()
		resp.Message = s.Outcome.Message
		resp.OutputURL = mediaURL(s.ID, s.Outcome.OutputPath)
		resp.FinishedAt = &s.FinishedAt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// SubmitJobHandler queues a submission and returns at once.
func (s *Server) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	spec, err := s.readSubmission(w, r)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, errNoVideo) {
			msg = pipeline.MsgNoVideo
		}
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if err := s.checkDelivery(r, spec); err != nil {
		s.Workspace.RemoveJob(spec.ID)
		http.Error(w, err.Error(), deliveryStatus(err))
		return
	}

	id, err := s.Jobs.Submit(spec)
	if err != nil {
		s.Workspace.RemoveJob(spec.ID)
		if errors.Is(err, job.ErrQueueFull) {
			http.Error(w, msgBusy, http.StatusServiceUnavailable)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to queue job: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":         id,
		"status_url": "/jobs/status?id=" + id,
	})
}

func deliveryStatus(err error) int {
	if errors.Is(err, errUnauthorized) {
		return http.StatusUnauthorized
	}
	return http.StatusBadRequest
}

// JobStatusHandler returns the status of a job by id
func (s *Server) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Job status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	snap, ok := s.Jobs.Get(id)
	if !ok {
		http.Error(w, fmt.Sprintf("Job %s not found", id), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(snap))
}

// CancelJobHandler cancels a pending or running job by id
func (s *Server) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Cancel job request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	logger.Infof("Attempting to cancel job: %s", id)
	if err := s.Jobs.Cancel(id); err != nil {
		var stateErr *job.StateError
		switch {
		case errors.Is(err, job.ErrNotFound):
			http.Error(w, fmt.Sprintf("Job not found: %s", id), http.StatusNotFound)
		case errors.As(err, &stateErr):
			http.Error(w, fmt.Sprintf("Cannot cancel job: %v", err), http.StatusConflict)
		default:
			http.Error(w, fmt.Sprintf("Cannot cancel job: %v", err), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
