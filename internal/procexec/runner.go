package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/printmanager/internal/docerr"
)

// Runner executes an external binary and captures its stdout.
type Runner interface {
	Run(ctx context.Context, path string, args ...string) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, path string, args ...string) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, path string, args ...string) (Result, error) {
	return f(ctx, path, args...)
}

// Result holds the captured output of a finished process.
type Result struct {
	Stdout   []byte
	ExitCode int
	Duration time.Duration
}

// ExitError is returned when the process ran but exited with a non-zero status.
// The accompanying Result still carries whatever stdout was produced.
type ExitError struct {
	Path   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Path, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Path, e.Code, e.Stderr)
}

// ExecRunner runs processes with os/exec.
type ExecRunner struct {
	// DiscardStderr drops the child's stderr instead of keeping it for ExitError.
	DiscardStderr bool
	// MaxStderr caps the stderr kept for error messages.
	MaxStderr int
}

// NewExecRunner creates a runner that keeps up to 2KB of stderr.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{MaxStderr: 2048}
}

// Run starts path with args and waits for it. It never retries.
func (r *ExecRunner) Run(ctx context.Context, path string, args ...string) (Result, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, path, args...)
	// grandchildren holding the pipes open must not outlive a cancelled context
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if r.DiscardStderr {
		cmd.Stderr = io.Discard
	} else {
		cmd.Stderr = &stderr
	}

	log.Debug().Str("cmd", path+" "+strings.Join(args, " ")).Msg("starting process")

	if err := cmd.Start(); err != nil {
		return Result{Duration: time.Since(start)}, fmt.Errorf("%w: %s: %v", docerr.ErrProcessLaunch, path, err)
	}

	err := cmd.Wait()
	res := Result{Stdout: stdout.Bytes(), Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", path, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Path: path, Code: res.ExitCode, Stderr: r.trimStderr(stderr.String())}
	}
	return res, fmt.Errorf("wait %s: %w", path, err)
}

func (r *ExecRunner) trimStderr(s string) string {
	s = strings.TrimSpace(s)
	if r.MaxStderr > 0 && len(s) > r.MaxStderr {
		return s[:r.MaxStderr]
	}
	return s
}
