package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"interpserve/logger"
	"interpserve/metrics"
	"interpserve/publish"
	"interpserve/records"
	"interpserve/targets"
)

// Recorder is the Finalizer used by the server: it publishes the output to the
// job's target, stores a history record, sends the completion callback and
// records metrics. Any of its stores may be nil.
type Recorder struct {
	Records  *records.Store
	Targets  *targets.Store
	ServeDir string
	Client   *http.Client
}

// Finish handles a finished job. Errors are logged; they never change the
// job's state.
func (r *Recorder) Finish(ctx context.Context, s Snapshot) []string {
	outcome := s.Outcome.Kind.String()
	metrics.JobsFinishedTotal.WithLabelValues(outcome).Inc()
	if !s.StartedAt.IsZero() {
		metrics.JobDuration.WithLabelValues(outcome).Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	}

	var published []string
	var publishErr error
	if s.State == StateCompleted && s.Spec.TargetKey != "" {
		loc, err := r.publish(ctx, s)
		if err != nil {
			logger.Errorf("Failed to publish output of job %s: %v", s.ID, err)
			publishErr = err
		} else {
			published = append(published, loc)
		}
	}

	if r.Records != nil {
		rec := records.Record{
			ID:          s.ID,
			Status:      s.State.String(),
			Outcome:     outcome,
			Message:     s.Outcome.Message,
			Filename:    s.Spec.Filename,
			ContentHash: s.Spec.ContentHash,
			Params:      s.Spec.Params,
			OutputPath:  s.Outcome.OutputPath,
			Published:   published,
			StartedAt:   s.StartedAt,
			FinishedAt:  s.FinishedAt,
		}
		if publishErr != nil {
			rec.PublishErr = publishErr.Error()
		}
		if err := r.Records.Put(rec); err != nil {
			logger.Errorf("Failed to store record for job %s: %v", s.ID, err)
		}
	}

	if s.Spec.CallbackURL != "" {
		if err := r.sendCallback(ctx, s, published); err != nil {
			logger.Errorf("Failed to send callback for job %s: %v", s.ID, err)
		}
	}
	return published
}

func (r *Recorder) publish(ctx context.Context, s Snapshot) (string, error) {
	if r.Targets == nil {
		return "", fmt.Errorf("no targets store configured")
	}
	creds, err := r.Targets.Get(s.Spec.TargetKey)
	if err != nil {
		return "", fmt.Errorf("target %s: %w", s.Spec.TargetKey, err)
	}

	f, err := os.Open(s.Outcome.OutputPath)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	info := publish.PrepareAccessInfo(creds, filepath.Base(s.Outcome.OutputPath), s.ID, r.ServeDir)
	if err := publish.Write(ctx, info, f, creds["type"]); err != nil {
		return "", err
	}
	return publish.Location(info), nil
}

func (r *Recorder) sendCallback(ctx context.Context, s Snapshot, published []string) error {
	payload := map[string]any{
		"id":        s.ID,
		"status":    s.State.String(),
		"message":   s.Outcome.Message,
		"published": published,
		"timestamp": time.Now().Unix(),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Spec.CallbackURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "interpserve/1.0")
	for key, value := range s.Spec.CallbackHeaders {
		req.Header.Set(key, value)
	}

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned non-2xx status: %d", resp.StatusCode)
	}
	logger.Infof("Successfully sent callback to %s", s.Spec.CallbackURL)
	return nil
}
