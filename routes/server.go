package routes

import (
	"net/http"

	"interpserve/auth"
	"interpserve/job"
	"interpserve/metrics"
	"interpserve/records"
	"interpserve/targets"
	"interpserve/workspace"
)

// Server holds what the handlers share. Records and Targets may be nil.
type Server struct {
	Jobs           *job.Manager
	Workspace      *workspace.Workspace
	Records        *records.Store
	Targets        *targets.Store
	MaxUploadBytes int64
	JWTSecret      string
}

// Register mounts every route on mux. API routes need a bearer token when
// JWTSecret is set; the form page, media and health routes stay open.
func (s *Server) Register(mux *http.ServeMux) {
	protect := func(h http.HandlerFunc) http.Handler {
		return auth.Require(s.JWTSecret, h)
	}

	mux.HandleFunc("/", s.FormHandler)
	mux.HandleFunc("/process", s.ProcessHandler)
	mux.Handle("/jobs", protect(s.SubmitJobHandler))
	mux.Handle("/jobs/status", protect(s.JobStatusHandler))
	mux.Handle("/jobs/cancel", protect(s.CancelJobHandler))
	mux.HandleFunc("/media/", s.MediaHandler)
	mux.Handle("/records", protect(s.RecordQueryHandler))
	mux.Handle("/records/list", protect(s.RecordListHandler))
	mux.Handle("/targets", protect(s.RegisterTargetHandler))
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/version", VersionHandler)
	mux.Handle("/metrics", metrics.Handler())
}
