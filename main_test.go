package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"interpserve/job"
	"interpserve/pipeline"
	"interpserve/records"
	"interpserve/workspace"
)

type instantProcessor struct{}

func (instantProcessor) Process(ctx context.Context, req pipeline.Request) pipeline.Outcome {
	return pipeline.Outcome{Kind: pipeline.KindMissingOutput, Message: pipeline.MsgNoOutput}
}

func TestRunCleanup(t *testing.T) {
	dir := t.TempDir()
	ws, err := workspace.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Cleanup()
	recs, err := records.Open(filepath.Join(dir, "records.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer recs.Close()

	jobs := job.NewManager(instantProcessor{}, ws, nil, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go jobs.Run(ctx)

	id, err := jobs.Submit(job.Spec{SourcePath: "x"})
	if err != nil {
		t.Fatal(err)
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	if _, err := jobs.Wait(waitCtx, id); err != nil {
		t.Fatal(err)
	}
	jobDir, _ := ws.JobPath(id)

	// A stray directory no job owns.
	stray, _ := ws.JobDir("stray")
	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(stray, past, past)

	recs.Put(records.Record{ID: "ancient", FinishedAt: time.Now().Add(-48 * time.Hour)})
	recs.Put(records.Record{ID: "recent"})

	// Zero retention: every finished job is past it.
	runCleanup(jobs, ws, recs, time.Nanosecond, 24*time.Hour)

	if _, ok := jobs.Get(id); ok {
		t.Error("Finished job should have been forgotten")
	}
	for _, d := range []string{jobDir, stray} {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("%s should be removed", d)
		}
	}
	if r, _ := recs.Get("ancient"); r != nil {
		t.Error("Old record should be expired")
	}
	if r, _ := recs.Get("recent"); r == nil {
		t.Error("Recent record should survive")
	}
}

func TestPrintTokenNeedsSecret(t *testing.T) {
	t.Setenv("INTERPSERVE_JWT_SECRET", "")
	if code := printToken("ops", time.Hour); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	t.Setenv("INTERPSERVE_JWT_SECRET", "main-test-secret-long-enough-for-hs256")
	if code := printToken("ops", time.Hour); code != 0 {
		t.Errorf("Expected exit code 0, got %d", code)
	}
}

// runEnv points run at a stub SVFI install and temp dirs, returning the
// parent directory of the workspace.
func runEnv(t *testing.T) string {
	t.Helper()
	svfiDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(svfiDir, "one_line_shot_args.py"), []byte("# stub\n"), 0644); err != nil {
		t.Fatal(err)
	}
	workBase := t.TempDir()
	t.Setenv("INTERPSERVE_SVFI_DIR", svfiDir)
	t.Setenv("INTERPSERVE_WORK_DIR", workBase)
	t.Setenv("INTERPSERVE_DATA_DIR", t.TempDir())
	t.Setenv("INTERPSERVE_SERVE_DIR", t.TempDir())
	t.Setenv("INTERPSERVE_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_LEVEL", "error")
	return workBase
}

func assertWorkspaceRemoved(t *testing.T, workBase string) {
	t.Helper()
	entries, err := os.ReadDir(workBase)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "interpserve-") {
			t.Errorf("Workspace %s left behind", e.Name())
		}
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	workBase := runEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	assertWorkspaceRemoved(t, workBase)
}

func TestRunRecoversPanic(t *testing.T) {
	workBase := runEnv(t)
	orig := onStarted
	onStarted = func() { panic("boom") }
	t.Cleanup(func() { onStarted = orig })

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Expected recovered panic, got %v", err)
	}
	assertWorkspaceRemoved(t, workBase)
}

func TestRunMissingSVFI(t *testing.T) {
	runEnv(t)
	t.Setenv("INTERPSERVE_SVFI_DIR", filepath.Join(t.TempDir(), "absent"))
	if err := run(context.Background()); err == nil {
		t.Error("Expected installation check to fail")
	}
}
