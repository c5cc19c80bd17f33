package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/mangarecap/tools"
)

var (
	// ErrToolUnavailable is fatal and detected before any work starts.
	ErrToolUnavailable = tools.ErrToolUnavailable
	// ErrInvalidInput is fatal: the input cannot be read as pages.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTooManyFailures aborts a run whose excluded-page ratio exceeds the
	// configured threshold.
	ErrTooManyFailures = errors.New("too many failed pages")
)

// Exit codes returned by ExitCode.
const (
	ExitOK              = 0
	ExitToolUnavailable = 1
	ExitInvalidInput    = 2
	ExitStageFailure    = 3
)

// PageError excludes one page from the recap. It is collected, not returned.
type PageError struct {
	Page  int
	Stage Stage
	Cause error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d (%s): %v", e.Page+1, e.Stage, e.Cause)
}

func (e *PageError) Unwrap() error { return e.Cause }

// StageError aborts the run at Stage.
type StageError struct {
	Stage Stage
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// ExitCode maps an error to the process exit status. A missing tool is exit 1
// only when caught before the run starts; once a stage has begun, losing a
// tool is a stage failure.
func ExitCode(err error) int {
	var se *StageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &se):
		if errors.Is(err, ErrInvalidInput) {
			return ExitInvalidInput
		}
		return ExitStageFailure
	case errors.Is(err, ErrToolUnavailable):
		return ExitToolUnavailable
	case errors.Is(err, ErrInvalidInput):
		return ExitInvalidInput
	default:
		return ExitStageFailure
	}
}

// FailedStage returns the stage err originated in, or StageNone.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageNone
}

// ToolOf returns the external program implicated in err, if any.
func ToolOf(err error) string {
	var missing *tools.MissingError
	if errors.As(err, &missing) {
		return missing.Tool
	}
	var execErr *tools.ExecError
	if errors.As(err, &execErr) {
		return execErr.Tool
	}
	return ""
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
