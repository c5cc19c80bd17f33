// Package tools wraps external programs (ffmpeg, pdftoppm, espeak, ...) behind
// an explicit request/response call with a timeout and captured stderr.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// ErrToolUnavailable marks a required program that cannot be found.
var ErrToolUnavailable = errors.New("external tool unavailable")

// MissingError names the program that failed the pre-flight check.
type MissingError struct {
	Tool string
	Path string
	Err  error
}

func (e *MissingError) Error() string {
	if e.Path != "" && e.Path != e.Tool {
		return fmt.Sprintf("%s not found at %s: %v", e.Tool, e.Path, e.Err)
	}
	return fmt.Sprintf("%s not found in PATH: %v", e.Tool, e.Err)
}

func (e *MissingError) Unwrap() []error { return []error{ErrToolUnavailable, e.Err} }

// Request is one program invocation.
type Request struct {
	// Tool is the logical name used in errors, e.g. "ffmpeg".
	Tool string
	// Path is the executable; empty means Tool is looked up in PATH.
	Path string
	Args []string
	Dir  string
	// Stdin, when set, is streamed to the process.
	Stdin io.Reader
	// Stdout, when set, receives standard output instead of Response.Stdout.
	Stdout io.Writer
	// Timeout of zero uses the runner default; NoTimeout leaves the run
	// bounded by ctx alone.
	Timeout time.Duration
}

// NoTimeout disables the per-request timeout.
const NoTimeout time.Duration = -1

// Response captures what the program printed.
type Response struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// ExecError reports a failed or timed-out invocation.
type ExecError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Tool)
	if e.TimedOut {
		b.WriteString(" timed out")
	} else {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if s := tail(e.Stderr, 6); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error { return e.Err }

// waitDelay bounds how long Run waits for output pipes after the process is
// killed; grandchildren may still hold them open.
const waitDelay = 2 * time.Second

// Runner executes requests.
type Runner interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// DefaultTimeout applies to requests without their own; zero disables it.
	DefaultTimeout time.Duration
}

// NewRunner returns an ExecRunner with the given default timeout.
func NewRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{DefaultTimeout: timeout}
}

// Run starts the program and waits for it. Cancellation of ctx kills it.
func (r *ExecRunner) Run(ctx context.Context, req Request) (Response, error) {
	exe := req.Path
	if exe == "" {
		exe = req.Tool
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = r.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, req.Args...)
	cmd.Dir = req.Dir
	cmd.WaitDelay = waitDelay
	cmd.Stdin = req.Stdin
	cmd.Stderr = &stderr
	if req.Stdout != nil {
		cmd.Stdout = req.Stdout
	} else {
		cmd.Stdout = &stdout
	}

	start := time.Now()
	err := cmd.Run()
	resp := Response{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}
	if err == nil {
		return resp, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return resp, &MissingError{Tool: req.Tool, Path: exe, Err: err}
	}
	execErr := &ExecError{Tool: req.Tool, Args: req.Args, ExitCode: -1, Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		execErr.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		execErr.Err = ctxErr
	}
	return resp, execErr
}

// Check resolves each program, returning a MissingError for the first one
// that cannot be executed. Keys are logical names, values executable paths
// (empty means look up the name).
func Check(tools map[string]string) error {
	for _, name := range slices.Sorted(maps.Keys(tools)) {
		if _, err := Resolve(name, tools[name]); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the executable path for a tool.
func Resolve(name, path string) (string, error) {
	exe := path
	if exe == "" {
		exe = name
	}
	resolved, err := exec.LookPath(exe)
	if err != nil {
		return "", &MissingError{Tool: name, Path: exe, Err: err}
	}
	return resolved, nil
}

func tail(s string, lines int) string {
	parts := strings.Split(strings.TrimSpace(s), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.TrimSpace(strings.Join(parts, " | "))
}
