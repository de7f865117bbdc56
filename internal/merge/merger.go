// Package merge locates the external merge tool and runs the
// stream-copy mux that combines the staged video and audio files.
package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Henrique-Coder/unifysync/internal/domain"
)

// ToolName is the external merge binary searched for on PATH.
const ToolName = "ffmpeg"

// ErrToolNotFound means the merge tool is absent from PATH. Fatal: no
// merge is possible and nothing should be downloaded.
var ErrToolNotFound = errors.New("merge: ffmpeg not found in PATH")

// ExecError reports a merge child process that could not be started or
// exited non-zero.
type ExecError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

// Error formats the failure with enough context to diagnose.
func (e *ExecError) Error() string {
	return fmt.Sprintf("merge: %s exited with code %d: %s",
		ToolName, e.ExitCode, e.Stderr)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ExecError) Unwrap() error {
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec with a discrete argument
// vector; nothing is ever passed through a shell.
type execRunner struct{}

// Run executes one command and captures stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
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

// LocateTool searches PATH for the merge tool and returns its resolved
// path.
func LocateTool() (string, error) {
	path, err := exec.LookPath(ToolName)
	if err != nil {
		return "", ErrToolNotFound
	}
	return path, nil
}

// Merger invokes the merge tool.
type Merger struct {
	logger   *zap.Logger
	runner   commandRunner
	mkdirAll func(string, os.FileMode) error
	stat     func(string) (os.FileInfo, error)
}

// NewMerger builds a merger using real OS dependencies.
func NewMerger(logger *zap.Logger) *Merger {
	return &Merger{
		logger:   logger,
		runner:   &execRunner{},
		mkdirAll: os.MkdirAll,
		stat:     os.Stat,
	}
}

// Merge runs the stream-copy mux for job. The output parent directory
// is created first; any existing output file is overwritten. Not
// retried on failure.
func (m *Merger) Merge(ctx context.Context, job domain.MergeJob) error {
	m.logger.Info("merging staged streams",
		zap.String("video", job.VideoPath),
		zap.String("audio", job.AudioPath),
		zap.String("output", job.OutputPath))

	if err := m.mkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return fmt.Errorf("merge: create output directory: %w", err)
	}

	args := buildMergeArgs(job)
	m.logger.Debug("running merge tool",
		zap.String("tool", job.Tool),
		zap.Strings("args", args))

	result, err := m.runner.Run(ctx, job.Tool, args...)
	if err != nil {
		return &ExecError{
			Args:     args,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Err:      err,
		}
	}

	if _, err := m.stat(job.OutputPath); err != nil {
		return fmt.Errorf("merge: tool succeeded but output is missing: %w", err)
	}

	m.logger.Info("merged file saved", zap.String("output", job.OutputPath))
	return nil
}

// buildMergeArgs builds the stream-copy mux argument vector: both
// inputs copied without re-encode, existing output overwritten, tool
// banner and verbose logs suppressed.
func buildMergeArgs(job domain.MergeJob) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", job.VideoPath,
		"-i", job.AudioPath,
		"-c", "copy",
		job.OutputPath,
	}
}

// NewMergerForTests builds a merger with injectable dependencies.
func NewMergerForTests(
	logger *zap.Logger,
	runner commandRunner,
	mkdirAll func(string, os.FileMode) error,
	stat func(string) (os.FileInfo, error),
) *Merger {
	return &Merger{logger: logger, runner: runner, mkdirAll: mkdirAll, stat: stat}
}
