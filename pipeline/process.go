// Package pipeline runs one submission: stage the video, write the SVFI
// config, invoke the tool and find its output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"interpserve/logger"
	"interpserve/result"
	"interpserve/settings"
	"interpserve/svfi"
)

// Kind classifies how a submission ended.
type Kind int

const (
	KindSucceeded Kind = iota
	KindMissingInput
	KindProcessFailed
	KindMissingOutput
	KindAmbiguousOutput
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindSucceeded:
		return "succeeded"
	case KindMissingInput:
		return "missing_input"
	case KindProcessFailed:
		return "process_failed"
	case KindMissingOutput:
		return "missing_output"
	case KindAmbiguousOutput:
		return "ambiguous_output"
	case KindCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Messages shown to the user.
const (
	MsgNoVideo   = "Please upload a video first"
	MsgNoOutput  = "Processing finished, but no output file was found"
	MsgCancelled = "Processing cancelled"
)

const (
	ConfigFileName = "svfi_config.ini"
	OutputDirName  = "output"
)

// Request describes one submission. JobDir is private to the job.
type Request struct {
	JobDir     string
	SourcePath string
	TaskID     string
	Params     settings.Overrides
	Progress   func(line string)
}

// Outcome is what the form shows: a video path on success, a message always.
type Outcome struct {
	Kind       Kind
	OutputPath string
	Message    string
	Err        error
}

// Succeeded reports whether the outcome carries an output video.
func (o Outcome) Succeeded() bool {
	return o.Kind == KindSucceeded
}

type Processor struct {
	invoker   svfi.Invoker
	outputExt string
}

// NewProcessor returns a Processor that looks for outputs with outputExt
// (".mp4" when empty).
func NewProcessor(invoker svfi.Invoker, outputExt string) *Processor {
	if outputExt == "" {
		outputExt = ".mp4"
	}
	return &Processor{invoker: invoker, outputExt: outputExt}
}

// Process runs req to completion.
func (p *Processor) Process(ctx context.Context, req Request) Outcome {
	if req.SourcePath == "" {
		return Outcome{Kind: KindMissingInput, Message: MsgNoVideo}
	}

	inputPath, err := stageInput(req.SourcePath, req.JobDir)
	if err != nil {
		return failed(err)
	}

	outputDir := filepath.Join(req.JobDir, OutputDirName)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return failed(fmt.Errorf("create output dir: %w", err))
	}

	configPath := filepath.Join(req.JobDir, ConfigFileName)
	if err := settings.New(outputDir).Apply(req.Params).WriteFile(configPath); err != nil {
		return failed(err)
	}
	logger.Debugf("Wrote SVFI config %s (fps=%d fp16=%t scale=%g scdet=%d crf=%d)", configPath,
		req.Params.TargetFPS, req.Params.UseFP16, req.Params.FlowScale, req.Params.SceneCutThreshold, req.Params.CRF)

	err = p.invoker.Invoke(ctx, svfi.Invocation{
		InputPath:  inputPath,
		ConfigPath: configPath,
		TaskID:     req.TaskID,
		Progress:   req.Progress,
	})
	if err != nil {
		var exitErr *svfi.ExitError
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return Outcome{Kind: KindCancelled, Message: MsgCancelled, Err: err}
		case errors.As(err, &exitErr):
			return Outcome{
				Kind:    KindProcessFailed,
				Message: fmt.Sprintf("Processing failed, exit code: %d", exitErr.Code),
				Err:     err,
			}
		default:
			return failed(err)
		}
	}

	out, err := result.Locate(outputDir, p.outputExt)
	if err != nil {
		var amb *result.AmbiguousError
		switch {
		case errors.Is(err, result.ErrNoOutput):
			return Outcome{Kind: KindMissingOutput, Message: MsgNoOutput, Err: err}
		case errors.As(err, &amb):
			return Outcome{
				Kind:    KindAmbiguousOutput,
				Message: fmt.Sprintf("Processing finished, but %d output files were found", len(amb.Matches)),
				Err:     err,
			}
		default:
			return failed(err)
		}
	}

	return Outcome{Kind: KindSucceeded, OutputPath: out, Message: "Processing succeeded: " + out}
}

func failed(err error) Outcome {
	return Outcome{Kind: KindProcessFailed, Message: "Processing failed: " + err.Error(), Err: err}
}

// stageInput copies src to <jobDir>/input<ext>, replacing any earlier copy.
func stageInput(src, jobDir string) (string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = ".mp4"
	}
	dst := filepath.Join(jobDir, "input"+ext)

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source video: %w", err)
	}
	defer in.Close()

	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove previous input: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create input file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy source video: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close input file: %w", err)
	}
	return dst, nil
}
