package routes

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"interpserve/auth"
	"interpserve/job"
	"interpserve/logger"
)

var errNoVideo = errors.New("no video uploaded")

// multipartMemory is how much of a form ParseMultipartForm keeps in memory;
// the rest spills to temp files.
const multipartMemory = 32 << 20

// readSubmission parses the multipart form, saves the uploaded video into a
// fresh job directory and returns the job spec for it.
func (s *Server) readSubmission(w http.ResponseWriter, r *http.Request) (job.Spec, error) {
	if s.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return job.Spec{}, fmt.Errorf("upload exceeds %d MB", tooBig.Limit>>20)
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return job.Spec{}, fmt.Errorf("failed to parse multipart form: %w", err)
		}
	}

	params, err := parseParams(r)
	if err != nil {
		return job.Spec{}, err
	}

	file, header, err := r.FormFile(fieldVideo)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return job.Spec{}, errNoVideo
		}
		return job.Spec{}, fmt.Errorf("failed to get file from form: %w", err)
	}
	defer file.Close()

	id := job.NewID()
	hash := sha256.New()
	path, err := s.Workspace.SaveUpload(id, header.Filename, io.TeeReader(file, hash))
	if err != nil {
		logger.Errorf("Failed to save upload for job %s: %v", id, err)
		return job.Spec{}, fmt.Errorf("failed to save upload: %w", err)
	}

	return job.Spec{
		ID:          id,
		SourcePath:  path,
		Filename:    filepath.Base(header.Filename),
		ContentHash: hex.EncodeToString(hash.Sum(nil)),
		Params:      params,
		TargetKey:   r.FormValue(fieldTarget),
		CallbackURL:     r.FormValue(fieldCallback),
		CallbackHeaders: callbackHeaders(r),
	}, nil
}

func callbackHeaders(r *http.Request) map[string]string {
	var headers map[string]string
	for field, values := range r.PostForm {
		name, ok := strings.CutPrefix(field, callbackHeaderPrefix)
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		if headers == nil {
			headers = make(map[string]string)
		}
		headers[http.CanonicalHeaderKey(name)] = values[0]
	}
	return headers
}

var errUnauthorized = errors.New("a valid token is required to publish or send callbacks")

// checkDelivery vets what a submission asks the server to do with its result.
// Publishing and callbacks need a token when auth is enabled, and the target
// must exist.
func (s *Server) checkDelivery(r *http.Request, spec job.Spec) error {
	if spec.TargetKey == "" && spec.CallbackURL == "" && len(spec.CallbackHeaders) == 0 {
		return nil
	}
	if s.JWTSecret != "" {
		if _, err := auth.FromRequest(r, auth.ServerConfig(s.JWTSecret)); err != nil {
			logger.Warnf("Rejected delivery options from %s: %v", r.RemoteAddr, err)
			return fmt.Errorf("%w: %v", errUnauthorized, err)
		}
	}
	if spec.TargetKey != "" && s.Targets != nil {
		if _, err := s.Targets.Get(spec.TargetKey); err != nil {
			return fmt.Errorf("unknown target: %w", err)
		}
	}
	return nil
}

// mediaURL is where MediaHandler serves a job's output.
func mediaURL(id, outputPath string) string {
	if outputPath == "" {
		return ""
	}
	return "/media/" + id + "/" + filepath.Base(outputPath)
}
