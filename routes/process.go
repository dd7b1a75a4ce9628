package routes

import (
	"errors"
	"net/http"

	"interpserve/job"
	"interpserve/logger"
	"interpserve/pipeline"
	"interpserve/settings"
)

const msgBusy = "The server is busy, please try again later"

// ProcessHandler runs one form submission and waits for it. If the client goes
// away first, the job is cancelled.
func (s *Server) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Process request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	spec, err := s.readSubmission(w, r)
	if err != nil {
		data := pageData{Params: settings.DefaultOverrides(), Message: err.Error()}
		if r.Form != nil {
			if p, perr := parseParams(r); perr == nil {
				data.Params = p
			}
		}
		if errors.Is(err, errNoVideo) {
			data.Message = pipeline.MsgNoVideo
			renderPage(w, http.StatusOK, data)
			return
		}
		logger.Warnf("Rejected submission from %s: %v", r.RemoteAddr, err)
		renderPage(w, http.StatusBadRequest, data)
		return
	}

	if err := s.checkDelivery(r, spec); err != nil {
		s.Workspace.RemoveJob(spec.ID)
		renderPage(w, deliveryStatus(err), pageData{Params: spec.Params, Message: err.Error()})
		return
	}

	id, err := s.Jobs.Submit(spec)
	if err != nil {
		s.Workspace.RemoveJob(spec.ID)
		status := http.StatusInternalServerError
		msg := "Processing failed: " + err.Error()
		if errors.Is(err, job.ErrQueueFull) {
			status, msg = http.StatusServiceUnavailable, msgBusy
		}
		renderPage(w, status, pageData{Params: spec.Params, Message: msg})
		return
	}

	snap, err := s.Jobs.Wait(r.Context(), id)
	if err != nil {
		logger.Warnf("Client left before job %s finished, cancelling: %v", id, err)
		if cerr := s.Jobs.Cancel(id); cerr != nil {
			logger.Debugf("Cancel of job %s: %v", id, cerr)
		}
		return
	}

	renderPage(w, http.StatusOK, pageData{
		Params:   spec.Params,
		VideoURL: mediaURL(id, snap.Outcome.OutputPath),
		Message:  snap.Outcome.Message,
	})
}
