// Package scripting runs user JavaScript hooks that rewrite narration text.
package scripting

import (
	"context"
)

// Engine represents a scripting engine (e.g., JavaScript).
type Engine interface {
	// Execute runs a script in the engine's global scope.
	Execute(ctx context.Context, script string) (interface{}, error)

	// Call invokes a global function by name.
	Call(ctx context.Context, name string, args ...interface{}) (interface{}, error)

	// RegisterHost exposes the recap run to scripts.
	RegisterHost(host Host) error
}

// Host is the run state visible to scripts as the global `recap` object and
// the `log` function.
type Host interface {
	// Title returns the recap title, possibly empty.
	Title() string

	// Log records a message from the script.
	Log(message string)
}
