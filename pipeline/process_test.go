package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"interpserve/settings"
	"interpserve/svfi"
)

// fakeInvoker records calls and optionally writes output files into the
// output_dir named by the config, the way SVFI would.
type fakeInvoker struct {
	calls   []svfi.Invocation
	outputs []string
	err     error
}

func (f *fakeInvoker) Invoke(ctx context.Context, inv svfi.Invocation) error {
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return f.err
	}
	s, err := settings.Load(inv.ConfigPath)
	if err != nil {
		return err
	}
	dir, _ := s.Get(settings.KeyOutputDir)
	for _, name := range f.outputs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("video"), 0644); err != nil {
			return err
		}
	}
	return nil
}

func newRequest(t *testing.T) Request {
	t.Helper()
	src := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(src, []byte("source"), 0644); err != nil {
		t.Fatal(err)
	}
	return Request{
		JobDir:     t.TempDir(),
		SourcePath: src,
		TaskID:     "task_test",
		Params:     settings.Overrides{TargetFPS: 90, UseFP16: false, FlowScale: 0.3, SceneCutThreshold: 7, CRF: 20},
	}
}

func TestProcessMissingInput(t *testing.T) {
	inv := &fakeInvoker{}
	out := NewProcessor(inv, "").Process(context.Background(), Request{JobDir: t.TempDir()})

	if out.Kind != KindMissingInput || out.Message != MsgNoVideo {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if out.OutputPath != "" {
		t.Error("Missing input must not carry an output path")
	}
	if len(inv.calls) != 0 {
		t.Error("External process must not be invoked without a video")
	}
}

func TestProcessSuccess(t *testing.T) {
	req := newRequest(t)
	inv := &fakeInvoker{outputs: []string{"clip_90fps.mp4"}}

	out := NewProcessor(inv, ".mp4").Process(context.Background(), req)
	if !out.Succeeded() {
		t.Fatalf("Expected success, got %+v", out)
	}
	want := filepath.Join(req.JobDir, OutputDirName, "clip_90fps.mp4")
	if out.OutputPath != want {
		t.Errorf("OutputPath = %s, want %s", out.OutputPath, want)
	}
	if !strings.Contains(out.Message, want) {
		t.Errorf("Success message should contain the path: %s", out.Message)
	}

	if len(inv.calls) != 1 {
		t.Fatalf("Expected one invocation, got %d", len(inv.calls))
	}
	call := inv.calls[0]
	if call.TaskID != "task_test" || call.InputPath != filepath.Join(req.JobDir, "input.mp4") {
		t.Errorf("Unexpected invocation %+v", call)
	}

	s, err := settings.Load(call.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range map[string]string{
		settings.KeyTargetFPS: "90",
		settings.KeyUseFP16:   "false",
		settings.KeyFlowScale: "0.3",
		settings.KeySceneCut:  "7",
		settings.KeyCRF:       "20",
	} {
		if got, _ := s.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestProcessNoOutput(t *testing.T) {
	out := NewProcessor(&fakeInvoker{}, "").Process(context.Background(), newRequest(t))
	if out.Kind != KindMissingOutput || out.Message != MsgNoOutput || out.OutputPath != "" {
		t.Errorf("Unexpected outcome %+v", out)
	}
}

func TestProcessAmbiguousOutput(t *testing.T) {
	inv := &fakeInvoker{outputs: []string{"a.mp4", "b.mp4"}}
	out := NewProcessor(inv, "").Process(context.Background(), newRequest(t))
	if out.Kind != KindAmbiguousOutput || out.OutputPath != "" {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if !strings.Contains(out.Message, "2 output files") {
		t.Errorf("Unexpected message %s", out.Message)
	}
}

func TestProcessExitStatus(t *testing.T) {
	inv := &fakeInvoker{err: &svfi.ExitError{Code: 2}}
	out := NewProcessor(inv, "").Process(context.Background(), newRequest(t))
	if out.Kind != KindProcessFailed || out.OutputPath != "" {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if out.Message != "Processing failed, exit code: 2" {
		t.Errorf("Unexpected message %s", out.Message)
	}
}

func TestProcessCancelled(t *testing.T) {
	inv := &fakeInvoker{err: context.Canceled}
	out := NewProcessor(inv, "").Process(context.Background(), newRequest(t))
	if out.Kind != KindCancelled || out.Message != MsgCancelled {
		t.Errorf("Unexpected outcome %+v", out)
	}
}

func TestProcessStartFailure(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("exec: python: not found")}
	out := NewProcessor(inv, "").Process(context.Background(), newRequest(t))
	if out.Kind != KindProcessFailed || !strings.Contains(out.Message, "not found") {
		t.Errorf("Unexpected outcome %+v", out)
	}
}

func TestProcessMissingSourceFile(t *testing.T) {
	req := newRequest(t)
	req.SourcePath = filepath.Join(t.TempDir(), "gone.mp4")
	inv := &fakeInvoker{}
	out := NewProcessor(inv, "").Process(context.Background(), req)
	if out.Kind != KindProcessFailed {
		t.Errorf("Expected failure for unreadable source, got %+v", out)
	}
	if len(inv.calls) != 0 {
		t.Error("Invoker should not run when staging fails")
	}
}

// Running twice in one job directory replaces the staged input.
func TestProcessRepeatedOverwritesInput(t *testing.T) {
	req := newRequest(t)
	p := NewProcessor(&fakeInvoker{outputs: []string{"out.mp4"}}, "")
	p.Process(context.Background(), req)

	if err := os.WriteFile(req.SourcePath, []byte("second source"), 0644); err != nil {
		t.Fatal(err)
	}
	p.Process(context.Background(), req)

	data, err := os.ReadFile(filepath.Join(req.JobDir, "input.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second source" {
		t.Errorf("Expected staged input to be replaced, got %q", data)
	}
}

// End to end with a shell script in place of SVFI.
func TestProcessWithRunner(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "one_line_shot_args.py")
	body := `out=$(sed -n 's/^output_dir *= *//p' "$4")
cp "$2" "$out/interpolated.mp4"
echo "task $6 done"
`
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	req := newRequest(t)
	var progress []string
	req.Progress = func(l string) { progress = append(progress, l) }

	out := NewProcessor(svfi.NewRunner(sh, script), "").Process(context.Background(), req)
	if !out.Succeeded() {
		t.Fatalf("Expected success, got %+v", out)
	}
	data, _ := os.ReadFile(out.OutputPath)
	if string(data) != "source" {
		t.Errorf("Unexpected output content %q", data)
	}
	if len(progress) == 0 || progress[len(progress)-1] != "task task_test done" {
		t.Errorf("Unexpected progress lines %q", progress)
	}
}
