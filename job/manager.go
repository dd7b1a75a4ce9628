// Package job queues submissions and runs them one at a time.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"interpserve/logger"
	"interpserve/metrics"
	"interpserve/pipeline"
	"interpserve/settings"
)

// State represents the current state of a job
type State int

const (
	StatePending State = iota
	StateProcessing
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Finished reports whether s is a final state.
func (s State) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var (
	ErrNotFound    = errors.New("job not found")
	ErrQueueFull   = errors.New("job queue is full")
	ErrNotFinished = errors.New("job is not finished")
)

// StateError is returned when a job's state forbids an operation.
type StateError struct {
	ID    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("job %s is already %s", e.ID, e.State)
}

// Spec is what a submission asks for. SourcePath is the saved upload.
type Spec struct {
	ID              string
	SourcePath      string
	Filename        string
	ContentHash     string
	Params          settings.Overrides
	TargetKey       string
	CallbackURL     string
	CallbackHeaders map[string]string
}

// Snapshot is a point-in-time copy of a job.
type Snapshot struct {
	ID          string
	State       State
	Spec        Spec
	Progress    string
	Lines       int
	Outcome     pipeline.Outcome
	Published   []string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Processor runs one submission. *pipeline.Processor satisfies it.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) pipeline.Outcome
}

// JobDirs hands out the private directory of a job. *workspace.Workspace
// satisfies it.
type JobDirs interface {
	JobDir(id string) (string, error)
}

// Finalizer runs after a job reaches a final state and returns where the
// output was published, if anywhere.
type Finalizer interface {
	Finish(ctx context.Context, s Snapshot) []string
}

type entry struct {
	snap   Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

type Manager struct {
	processor Processor
	dirs      JobDirs
	finalizer Finalizer

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*entry
}

// NewManager returns a Manager whose queue holds up to queueSize waiting jobs.
// finalizer may be nil.
func NewManager(processor Processor, dirs JobDirs, finalizer Finalizer, queueSize int) *Manager {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Manager{
		processor: processor,
		dirs:      dirs,
		finalizer: finalizer,
		queue:     make(chan string, queueSize),
		jobs:      make(map[string]*entry),
	}
}

// NewID returns a fresh job id.
func NewID() string {
	return ulid.Make().String()
}

// TaskID is the SVFI task name used for job id.
func TaskID(id string) string {
	return "task_" + id
}

// Submit registers spec and queues it. An empty spec.ID gets a new one.
func (m *Manager) Submit(spec Spec) (string, error) {
	if spec.ID == "" {
		spec.ID = NewID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[spec.ID]; exists {
		return "", fmt.Errorf("job %s already exists", spec.ID)
	}

	select {
	case m.queue <- spec.ID:
	default:
		return "", ErrQueueFull
	}

	m.jobs[spec.ID] = &entry{
		snap: Snapshot{
			ID:          spec.ID,
			State:       StatePending,
			Spec:        spec,
			SubmittedAt: time.Now(),
		},
		done: make(chan struct{}),
	}
	metrics.QueueDepth.Inc()
	logger.Infof("Queued job %s (%s)", spec.ID, spec.Filename)
	return spec.ID, nil
}

// Get returns a snapshot of job id.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snap, true
}

// Active reports whether job id is pending or processing.
func (m *Manager) Active(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	return ok && !e.snap.State.Finished()
}

// Wait blocks until job id finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	select {
	case <-e.done:
		s, _ := m.Get(id)
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Cancel stops a pending or processing job. A processing job ends once its
// SVFI process has been killed.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}

	switch e.snap.State {
	case StatePending:
		e.snap.State = StateCancelled
		e.snap.FinishedAt = time.Now()
		e.snap.Outcome = pipeline.Outcome{Kind: pipeline.KindCancelled, Message: pipeline.MsgCancelled}
		snap := e.snap
		m.mu.Unlock()

		logger.Infof("Cancelled pending job %s", id)
		m.finish(context.Background(), e, snap)
		return nil
	case StateProcessing:
		cancel := e.cancel
		m.mu.Unlock()
		logger.Infof("Cancelling running job %s", id)
		if cancel != nil {
			cancel()
		}
		return nil
	default:
		state := e.snap.State
		m.mu.Unlock()
		return &StateError{ID: id, State: state}
	}
}

// Forget drops a finished job from the registry.
func (m *Manager) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !e.snap.State.Finished() {
		return ErrNotFinished
	}
	delete(m.jobs, id)
	return nil
}

// FinishedBefore lists jobs that reached a final state before cutoff.
func (m *Manager) FinishedBefore(cutoff time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, e := range m.jobs {
		if e.snap.State.Finished() && e.snap.FinishedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Run processes queued jobs until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	logger.Info("Job worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Job worker stopped")
			return
		case id := <-m.queue:
			metrics.QueueDepth.Dec()
			m.run(ctx, id)
		}
	}
}

func (m *Manager) run(ctx context.Context, id string) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok || e.snap.State != StatePending {
		// Cancelled while queued.
		m.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancel = cancel
	e.snap.State = StateProcessing
	e.snap.StartedAt = time.Now()
	spec := e.snap.Spec
	m.mu.Unlock()

	metrics.JobsInFlight.Inc()
	logger.Infof("Processing job %s", id)

	var outcome pipeline.Outcome
	dir, err := m.dirs.JobDir(id)
	if err != nil {
		outcome = pipeline.Outcome{Kind: pipeline.KindProcessFailed, Message: "Processing failed: " + err.Error(), Err: err}
	} else {
		outcome = m.processor.Process(jobCtx, pipeline.Request{
			JobDir:     dir,
			SourcePath: spec.SourcePath,
			TaskID:     TaskID(id),
			Params:     spec.Params,
			Progress:   func(line string) { m.progress(id, line) },
		})
	}
	metrics.JobsInFlight.Dec()

	m.mu.Lock()
	e.cancel = nil
	e.snap.Outcome = outcome
	e.snap.FinishedAt = time.Now()
	switch outcome.Kind {
	case pipeline.KindSucceeded:
		e.snap.State = StateCompleted
	case pipeline.KindCancelled:
		e.snap.State = StateCancelled
	default:
		e.snap.State = StateFailed
	}
	snap := e.snap
	m.mu.Unlock()

	if snap.State == StateCompleted {
		logger.Infof("Job %s completed: %s", id, outcome.OutputPath)
	} else {
		logger.Warnf("Job %s %s: %s", id, snap.State, outcome.Message)
	}
	m.finish(ctx, e, snap)
}

// finish runs the finalizer and then releases waiters.
func (m *Manager) finish(ctx context.Context, e *entry, snap Snapshot) {
	if m.finalizer != nil {
		published := m.finalizer.Finish(context.WithoutCancel(ctx), snap)
		if len(published) > 0 {
			m.mu.Lock()
			e.snap.Published = published
			m.mu.Unlock()
		}
	}
	close(e.done)
}

func (m *Manager) progress(id, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.jobs[id]; ok {
		e.snap.Progress = line
		e.snap.Lines++
	}
}
