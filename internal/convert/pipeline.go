package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/galeed/Conversor/internal/domain"
)

// FailureMessage is the single human-readable line surfaced when the
// engine rejects a conversion. Failure causes are not distinguished.
const FailureMessage = "Error during conversion. The engine could not process this file."

// Request contains the input file, options, and callbacks for one run.
type Request struct {
	InputPath string
	Options   domain.ConversionOptions
	OutputDir string
	OnStage   func(stage string)
	OnMessage func(line string)
	OnLog     func(log CommandLog)
}

// Result describes the finished conversion artifact.
type Result struct {
	OutputPath  string
	FileName    string
	ContentType string
	Size        int64
	Logs        []CommandLog
}

// CommandLog captures one engine invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// CommandResult is the raw process execution response.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ConvertError is a stage-aware error with optional command context.
type ConvertError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats conversion failures for logs and UI.
func (e *ConvertError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ConvertError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Engine abstracts the external transcoding engine: one transcode
// entry point and one probe entry point, each a token-list command.
type Engine interface {
	Run(ctx context.Context, args ...string) (CommandResult, error)
	Probe(ctx context.Context, args ...string) (CommandResult, error)
}

// Storage abstracts the engine's flat addressable storage namespace.
type Storage interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
}

// Pipeline orchestrates one conversion: stage the input into engine
// storage, execute the built invocation, read the output back, and
// export it under the suggested download name.
type Pipeline struct {
	engine  Engine
	storage Storage

	readFile  func(name string) ([]byte, error)
	writeFile func(name string, data []byte, perm os.FileMode) error
	mkdirAll  func(path string, perm os.FileMode) error
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline(engine Engine, storage Storage) *Pipeline {
	return &Pipeline{
		engine:    engine,
		storage:   storage,
		readFile:  os.ReadFile,
		writeFile: os.WriteFile,
		mkdirAll:  os.MkdirAll,
	}
}

// Run performs staging, engine execution, and result export. It is
// synchronous and single-flight; once the engine starts there is no
// cancellation and no partial cleanup of the staged input.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return Result{}, &ConvertError{
			Stage:   "staging",
			Message: "no input file selected",
		}
	}

	emitStage(req.OnStage, "staging")
	data, err := p.readFile(req.InputPath)
	if err != nil {
		return Result{}, &ConvertError{
			Stage:   "staging",
			Message: fmt.Sprintf("cannot read input file: %s", req.InputPath),
			Err:     err,
		}
	}

	if err := p.storage.WriteFile(InputName, data); err != nil {
		return Result{}, &ConvertError{
			Stage:   "staging",
			Message: "cannot stage input into engine storage",
			Err:     err,
		}
	}

	p.probeInput(ctx, req)

	inv := Build(req.Options, InputName)
	emitMessage(req.OnMessage, "Running: ffmpeg "+strings.Join(inv.Args, " "))

	emitStage(req.OnStage, "converting")
	cmdResult, runErr := p.engine.Run(ctx, inv.Args...)
	log := CommandLog{
		Command:  "ffmpeg",
		Args:     inv.Args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	emitLog(req.OnLog, log)
	if runErr != nil {
		return Result{}, &ConvertError{
			Stage:      "converting",
			Message:    FailureMessage,
			CommandLog: log,
			Err:        runErr,
		}
	}

	emitStage(req.OnStage, "exporting")
	output, err := p.storage.ReadFile(inv.OutputName)
	if err != nil {
		return Result{}, &ConvertError{
			Stage:      "exporting",
			Message:    "engine completed but the output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}

	if err := p.mkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, &ConvertError{
			Stage:   "exporting",
			Message: fmt.Sprintf("cannot create output directory: %s", req.OutputDir),
			Err:     err,
		}
	}

	fileName := DownloadName(req.Options)
	outputPath := filepath.Join(req.OutputDir, fileName)
	if err := p.writeFile(outputPath, output, 0o644); err != nil {
		return Result{}, &ConvertError{
			Stage:   "exporting",
			Message: fmt.Sprintf("cannot write output file: %s", outputPath),
			Err:     err,
		}
	}

	return Result{
		OutputPath:  outputPath,
		FileName:    fileName,
		ContentType: ContentType(req.Options),
		Size:        int64(len(output)),
		Logs:        []CommandLog{log},
	}, nil
}

// probeInput emits a one-line input summary from ffprobe. Probe
// failures are reported as a log line and never fail the run.
func (p *Pipeline) probeInput(ctx context.Context, req Request) {
	probeResult, err := p.engine.Probe(ctx, "-i", InputName)
	if err != nil {
		emitMessage(req.OnMessage, "Could not probe input, converting anyway")
		return
	}

	if summary := inputSummary(probeResult.Stderr); summary != "" {
		emitMessage(req.OnMessage, summary)
	}
}

// inputSummary extracts the duration line from ffprobe stderr, which
// carries the stream description on a diagnostic channel.
func inputSummary(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Duration:") {
			return trimmed
		}
	}
	return ""
}

// emitStage forwards stage updates when a callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// emitMessage forwards free-text log lines when a callback is configured.
func emitMessage(cb func(line string), line string) {
	if cb != nil {
		cb(line)
	}
}

// emitLog forwards command logs when a callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	engine Engine,
	storage Storage,
	readFile func(name string) ([]byte, error),
	writeFile func(name string, data []byte, perm os.FileMode) error,
	mkdirAll func(path string, perm os.FileMode) error,
) *Pipeline {
	return &Pipeline{
		engine:    engine,
		storage:   storage,
		readFile:  readFile,
		writeFile: writeFile,
		mkdirAll:  mkdirAll,
	}
}
