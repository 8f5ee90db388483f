package engine

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/galeed/Conversor/internal/convert"
)

// invocation preamble shared by every engine run: quiet startup, no
// terminal interaction, overwrite prior outputs in the workspace.
var baseArgs = []string{"-hide_banner", "-nostdin", "-y"}

// Runner executes the bootstrapped engine binaries inside the
// workspace directory, so the flat storage names resolve directly.
type Runner struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
}

// NewRunner builds a runner for the given binary paths and workspace.
func NewRunner(ffmpegPath, ffprobePath, workDir string) *Runner {
	return &Runner{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		workDir:     workDir,
	}
}

// Run executes the transcoder with the given token list.
func (r *Runner) Run(ctx context.Context, args ...string) (convert.CommandResult, error) {
	full := append(append([]string{}, baseArgs...), args...)
	return r.exec(ctx, r.ffmpegPath, full)
}

// Probe executes the prober with the given token list.
func (r *Runner) Probe(ctx context.Context, args ...string) (convert.CommandResult, error) {
	full := append([]string{"-hide_banner"}, args...)
	return r.exec(ctx, r.ffprobePath, full)
}

// exec runs one command and captures stdout/stderr and exit code.
func (r *Runner) exec(ctx context.Context, name string, args []string) (convert.CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.workDir

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := convert.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}
