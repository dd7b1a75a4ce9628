// Package svfi launches the external SVFI interpolation tool.
package svfi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"interpserve/logger"
)

const waitDelay = 3 * time.Second

// Invocation is one run of the tool.
type Invocation struct {
	InputPath  string
	ConfigPath string
	TaskID     string

	// Progress, if set, receives every non-empty line the tool prints.
	Progress func(line string)
}

// Invoker runs an invocation to completion.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) error
}

// ExitError reports a non-zero exit status from the tool.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("svfi exited with status %d", e.Code)
}

// Runner starts "<Python> <Entrypoint> -i <input> -c <config> -t <task>".
type Runner struct {
	Python     string
	Entrypoint string
}

func NewRunner(python, entrypoint string) *Runner {
	return &Runner{Python: python, Entrypoint: entrypoint}
}

// CommandLine returns the argv a run of inv would use.
func (r *Runner) CommandLine(inv Invocation) []string {
	return []string{r.Python, r.Entrypoint, "-i", inv.InputPath, "-c", inv.ConfigPath, "-t", inv.TaskID}
}

// Invoke blocks until the tool exits. Cancelling ctx kills the process.
func (r *Runner) Invoke(ctx context.Context, inv Invocation) error {
	argv := r.CommandLine(inv)
	logger.Infof("Running command: %s", quoteArgs(argv))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// Children that inherited the output pipe must not keep Wait blocked after a kill.
	cmd.WaitDelay = waitDelay
	out := logger.NewLineWriter(logger.DEBUG, "[svfi "+inv.TaskID+"] ", inv.Progress)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	out.Flush()

	if ctx.Err() != nil {
		return fmt.Errorf("svfi task %s: %w", inv.TaskID, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("failed to start svfi: %w", err)
	}
	return nil
}

func quoteArgs(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			quoted[i] = fmt.Sprintf("%q", a)
		} else {
			quoted[i] = a
		}
	}
	return strings.Join(quoted, " ")
}

// CheckInstallation verifies that dir holds an SVFI tree with the entrypoint script.
func CheckInstallation(dir, entrypoint string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("svfi directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("svfi directory %s is not a directory", dir)
	}
	if _, err := os.Stat(entrypoint); err != nil {
		return fmt.Errorf("svfi entrypoint: %w", err)
	}
	return nil
}

// AcceleratorAvailable reports whether an NVIDIA driver tool is on PATH.
// Without it SVFI falls back to CPU and runs far slower.
func AcceleratorAvailable() bool {
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}
