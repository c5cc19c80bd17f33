package scripting

import (
	"context"
	"fmt"
	"os"
	"time"
)

// FilterFunc is the name of the global a filter script must define:
//
//	function transform(text, page, rank) { return text.toUpperCase(); }
//
// Returning null or undefined keeps the text; returning an empty string
// drops it, which turns the panel into a placeholder.
const FilterFunc = "transform"

// DefaultCallTimeout bounds a single transform call.
const DefaultCallTimeout = 2 * time.Second

// Filter applies a user transform to each panel's narration.
type Filter struct {
	engine  Engine
	timeout time.Duration
}

// LoadFilter reads and evaluates a filter script.
func LoadFilter(ctx context.Context, path string, host Host) (*Filter, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter script: %w", err)
	}
	return NewFilter(ctx, string(src), host)
}

// NewFilter evaluates script on a fresh engine.
func NewFilter(ctx context.Context, script string, host Host) (*Filter, error) {
	engine := NewEngine()
	if host != nil {
		if err := engine.RegisterHost(host); err != nil {
			return nil, fmt.Errorf("register host: %w", err)
		}
	}
	if _, err := engine.Execute(ctx, script); err != nil {
		return nil, fmt.Errorf("evaluate filter script: %w", err)
	}
	if !engine.Defines(FilterFunc) {
		return nil, fmt.Errorf("filter script must define %s: %w", FilterFunc, ErrNotFunction)
	}
	return &Filter{engine: engine, timeout: DefaultCallTimeout}, nil
}

// Apply runs transform on one panel's text.
func (f *Filter) Apply(ctx context.Context, text string, page, rank int) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	out, err := f.engine.Call(ctx, FilterFunc, text, page, rank)
	if err != nil {
		return "", err
	}
	if out == nil {
		return text, nil
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("%s returned %T, want string", FilterFunc, out)
	}
	return s, nil
}

// Func adapts the filter to the narration hook signature.
func (f *Filter) Func(ctx context.Context) func(text string, page, rank int) (string, error) {
	return func(text string, page, rank int) (string, error) {
		return f.Apply(ctx, text, page, rank)
	}
}
