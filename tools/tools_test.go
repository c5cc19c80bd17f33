package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	requireShell(t)
	r := NewRunner(0)
	resp, err := r.Run(context.Background(), Request{Tool: "sh", Args: []string{"-c", "echo out; echo err >&2"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(string(resp.Stdout)) != "out" || strings.TrimSpace(string(resp.Stderr)) != "err" {
		t.Fatalf("unexpected output %q / %q", resp.Stdout, resp.Stderr)
	}
}

func TestRunStreamsStdin(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	_, err := NewRunner(0).Run(context.Background(), Request{
		Tool:   "sh",
		Args:   []string{"-c", "cat"},
		Stdin:  strings.NewReader("frames"),
		Stdout: &out,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.String() != "frames" {
		t.Fatalf("stdout = %q", out.String())
	}
}

func TestRunReportsExitCode(t *testing.T) {
	requireShell(t)
	_, err := NewRunner(0).Run(context.Background(), Request{Tool: "sh", Args: []string{"-c", "echo broken codec >&2; exit 3"}})
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if execErr.ExitCode != 3 || execErr.TimedOut {
		t.Fatalf("unexpected error fields: %+v", execErr)
	}
	if !strings.Contains(err.Error(), "broken codec") {
		t.Fatalf("stderr should appear in the message: %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	requireShell(t)
	_, err := NewRunner(50*time.Millisecond).Run(context.Background(), Request{Tool: "sh", Args: []string{"-c", "exec sleep 5"}})
	var execErr *ExecError
	if !errors.As(err, &execErr) || !execErr.TimedOut {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("timeout should wrap DeadlineExceeded: %v", err)
	}
}

func TestRunWithoutTimeout(t *testing.T) {
	requireShell(t)
	r := NewRunner(10 * time.Millisecond)
	if _, err := r.Run(context.Background(), Request{Tool: "sh", Args: []string{"-c", "sleep 0.2"}, Timeout: NoTimeout}); err != nil {
		t.Fatalf("NoTimeout request was cut short: %v", err)
	}
}

func TestRunMissingTool(t *testing.T) {
	_, err := NewRunner(0).Run(context.Background(), Request{Tool: "mangarecap-no-such-tool"})
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}
	var missing *MissingError
	if !errors.As(err, &missing) || missing.Tool != "mangarecap-no-such-tool" {
		t.Fatalf("expected MissingError naming the tool, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	requireShell(t)
	if err := Check(map[string]string{"sh": ""}); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	err := Check(map[string]string{"sh": "", "ffmpeg": "/nonexistent/ffmpeg"})
	var missing *MissingError
	if !errors.As(err, &missing) || missing.Tool != "ffmpeg" {
		t.Fatalf("expected ffmpeg to be reported, got %v", err)
	}
}
