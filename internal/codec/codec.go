// Package codec shells out to the external media tools (ffmpeg, ffprobe,
// ImageMagick convert) with per-invocation timeouts and captured output.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"gallery-server/internal/logging"
)

// Binary names resolved on PATH.
const (
	BinFFmpeg  = "ffmpeg"
	BinFFprobe = "ffprobe"
	BinConvert = "convert"
)

// Result captures the outcome of a finished external command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExecError wraps a failed command with enough context to log usefully.
type ExecError struct {
	Bin      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s failed (exit %d): %v", e.Bin, e.ExitCode, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " - " + truncate(s, 512)
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Runner executes external codec commands. The zero value is not usable;
// use NewRunner.
type Runner struct {
	available map[string]bool
}

// NewRunner probes PATH for the external tools and remembers which are
// present. Missing tools disable the operations that need them rather than
// failing at startup.
func NewRunner() *Runner {
	r := &Runner{available: make(map[string]bool)}
	for _, bin := range []string{BinFFmpeg, BinFFprobe, BinConvert} {
		if _, err := exec.LookPath(bin); err != nil {
			logging.Warn("%s not found on PATH; dependent processing disabled", bin)
			continue
		}
		r.available[bin] = true
	}
	return r
}

// Available reports whether the named binary was found on PATH.
func (r *Runner) Available(bin string) bool {
	return r.available[bin]
}

// Run executes bin with args, killing it when timeout elapses or ctx is
// cancelled. On success the Result carries captured stdout/stderr; on
// failure the error is an *ExecError, or ctx.Err() when the context ended
// the run.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, bin string, args ...string) (*Result, error) {
	if !r.available[bin] {
		return nil, fmt.Errorf("%s is not available", bin)
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		// Distinguish cancellation from tool failure: a killed process
		// reports an exit error, but the context tells the real story.
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%s timed out after %s: %w", bin, timeout, context.DeadlineExceeded)
		}
		return res, &ExecError{Bin: bin, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}

	logging.Debug("%s completed in %s", bin, res.Duration.Round(time.Millisecond))
	return res, nil
}

// RunStdout is Run but returns stdout directly, for probe-style commands.
func (r *Runner) RunStdout(ctx context.Context, timeout time.Duration, bin string, args ...string) (string, error) {
	res, err := r.Run(ctx, timeout, bin, args...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
