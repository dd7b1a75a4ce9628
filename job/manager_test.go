package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"interpserve/pipeline"
)

type tempDirs struct{ base string }

func (d tempDirs) JobDir(id string) (string, error) {
	dir := filepath.Join(d.base, id)
	return dir, os.MkdirAll(dir, 0755)
}

// blockingProcessor runs until released or cancelled and tracks concurrency.
type blockingProcessor struct {
	mu      sync.Mutex
	order   []string
	running int
	maxRun  int
	release chan struct{}
	started chan string
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{release: make(chan struct{}), started: make(chan string, 16)}
}

func (p *blockingProcessor) Process(ctx context.Context, req pipeline.Request) pipeline.Outcome {
	p.mu.Lock()
	p.order = append(p.order, req.TaskID)
	p.running++
	if p.running > p.maxRun {
		p.maxRun = p.running
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}()

	if req.Progress != nil {
		req.Progress("frame 1/10")
	}
	p.started <- req.TaskID

	select {
	case <-p.release:
		return pipeline.Outcome{Kind: pipeline.KindSucceeded, OutputPath: filepath.Join(req.JobDir, "out.mp4"), Message: "Processing succeeded"}
	case <-ctx.Done():
		return pipeline.Outcome{Kind: pipeline.KindCancelled, Message: pipeline.MsgCancelled, Err: ctx.Err()}
	}
}

type recordingFinalizer struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (f *recordingFinalizer) Finish(ctx context.Context, s Snapshot) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, s)
	if s.State == StateCompleted {
		return []string{"published/" + s.ID}
	}
	return nil
}

func startManager(t *testing.T, p Processor, f Finalizer, size int) *Manager {
	t.Helper()
	m := NewManager(p, tempDirs{t.TempDir()}, f, size)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	return m
}

func waitFor(t *testing.T, m *Manager, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s) failed: %v", id, err)
	}
	return s
}

func TestSubmitRunsToCompletion(t *testing.T) {
	p := newBlockingProcessor()
	f := &recordingFinalizer{}
	m := startManager(t, p, f, 4)

	id, err := m.Submit(Spec{SourcePath: "/tmp/upload.mp4", Filename: "clip.mp4"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected generated id")
	}

	<-p.started
	s, _ := m.Get(id)
	if s.State != StateProcessing {
		t.Errorf("Expected processing, got %s", s.State)
	}
	if s.Progress != "frame 1/10" || s.Lines != 1 {
		t.Errorf("Unexpected progress %q (%d lines)", s.Progress, s.Lines)
	}

	close(p.release)
	s = waitFor(t, m, id)
	if s.State != StateCompleted || !s.Outcome.Succeeded() {
		t.Errorf("Unexpected final snapshot %+v", s)
	}
	if len(s.Published) != 1 || s.Published[0] != "published/"+id {
		t.Errorf("Published = %v", s.Published)
	}
	if s.StartedAt.IsZero() || s.FinishedAt.Before(s.StartedAt) {
		t.Errorf("Bad timestamps %v %v", s.StartedAt, s.FinishedAt)
	}
	if len(f.snaps) != 1 || f.snaps[0].ID != id {
		t.Errorf("Finalizer saw %+v", f.snaps)
	}
}

func TestJobsRunOneAtATimeInOrder(t *testing.T) {
	p := newBlockingProcessor()
	m := startManager(t, p, nil, 8)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Submit(Spec{SourcePath: "x"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	close(p.release)
	for _, id := range ids {
		waitFor(t, m, id)
	}

	if p.maxRun != 1 {
		t.Errorf("Expected one job at a time, saw %d", p.maxRun)
	}
	for i, id := range ids {
		if p.order[i] != TaskID(id) {
			t.Errorf("order[%d] = %s, want %s", i, p.order[i], TaskID(id))
		}
	}
}

func TestQueueFull(t *testing.T) {
	// No worker running, so nothing drains the queue.
	m := NewManager(newBlockingProcessor(), tempDirs{t.TempDir()}, nil, 1)
	if _, err := m.Submit(Spec{}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Submit(Spec{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

func TestDuplicateID(t *testing.T) {
	m := NewManager(newBlockingProcessor(), tempDirs{t.TempDir()}, nil, 4)
	if _, err := m.Submit(Spec{ID: "same"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Submit(Spec{ID: "same"}); err == nil {
		t.Error("Expected duplicate id error")
	}
}

func TestCancelPending(t *testing.T) {
	p := newBlockingProcessor()
	f := &recordingFinalizer{}
	m := startManager(t, p, f, 4)

	first, _ := m.Submit(Spec{})
	<-p.started
	second, _ := m.Submit(Spec{})

	if err := m.Cancel(second); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	s := waitFor(t, m, second)
	if s.State != StateCancelled || s.Outcome.Message != pipeline.MsgCancelled {
		t.Errorf("Unexpected snapshot %+v", s)
	}

	close(p.release)
	waitFor(t, m, first)

	// Give the worker a moment to dequeue the cancelled job.
	time.Sleep(50 * time.Millisecond)
	for _, task := range p.order {
		if task == TaskID(second) {
			t.Error("Cancelled pending job must not be processed")
		}
	}
}

func TestCancelProcessing(t *testing.T) {
	p := newBlockingProcessor()
	m := startManager(t, p, nil, 4)

	id, _ := m.Submit(Spec{})
	<-p.started
	if err := m.Cancel(id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	s := waitFor(t, m, id)
	if s.State != StateCancelled {
		t.Errorf("Expected cancelled, got %s", s.State)
	}
}

func TestCancelErrors(t *testing.T) {
	p := newBlockingProcessor()
	m := startManager(t, p, nil, 4)

	if err := m.Cancel("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	id, _ := m.Submit(Spec{})
	close(p.release)
	waitFor(t, m, id)

	var stateErr *StateError
	if err := m.Cancel(id); !errors.As(err, &stateErr) || stateErr.State != StateCompleted {
		t.Errorf("Expected StateError for finished job, got %v", err)
	}
}

func TestForgetAndFinishedBefore(t *testing.T) {
	p := newBlockingProcessor()
	m := startManager(t, p, nil, 4)

	id, _ := m.Submit(Spec{})
	<-p.started
	if err := m.Forget(id); !errors.Is(err, ErrNotFinished) {
		t.Errorf("Expected ErrNotFinished, got %v", err)
	}
	if !m.Active(id) {
		t.Error("Running job should be active")
	}

	close(p.release)
	waitFor(t, m, id)
	if m.Active(id) {
		t.Error("Finished job should not be active")
	}
	if got := m.FinishedBefore(time.Now().Add(-time.Hour)); len(got) != 0 {
		t.Errorf("Nothing finished an hour ago, got %v", got)
	}
	if got := m.FinishedBefore(time.Now().Add(time.Second)); len(got) != 1 || got[0] != id {
		t.Errorf("FinishedBefore = %v", got)
	}

	if err := m.Forget(id); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, ok := m.Get(id); ok {
		t.Error("Forgotten job still present")
	}
	if err := m.Forget(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestWaitContextDone(t *testing.T) {
	m := NewManager(newBlockingProcessor(), tempDirs{t.TempDir()}, nil, 4)
	id, _ := m.Submit(Spec{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Wait(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if _, err := m.Wait(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStateStrings(t *testing.T) {
	tests := map[State]string{
		StatePending:    "pending",
		StateProcessing: "processing",
		StateCompleted:  "completed",
		StateFailed:     "failed",
		StateCancelled:  "cancelled",
		State(42):       "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d) = %s, want %s", s, s.String(), want)
		}
	}
}
