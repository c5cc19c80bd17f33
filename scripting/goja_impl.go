package scripting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// ErrNotFunction is returned by Call when the global is missing or not callable.
var ErrNotFunction = errors.New("not a function")

// GojaEngine is an Engine backed by goja. A goja runtime is single-threaded,
// so calls are serialized.
type GojaEngine struct {
	mu sync.Mutex
	vm *goja.Runtime
}

func NewEngine() *GojaEngine {
	vm := goja.New()
	return &GojaEngine{vm: vm}
}

func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	val, err := e.interruptible(ctx, func() (goja.Value, error) {
		return e.vm.RunString(script)
	})
	if err != nil {
		return nil, err
	}
	return val.Export(), nil
}

// Call invokes a global function. Undefined and null results export as nil.
func (e *GojaEngine) Call(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, ok := goja.AssertFunction(e.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFunction)
	}
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = e.vm.ToValue(a)
	}
	val, err := e.interruptible(ctx, func() (goja.Value, error) {
		return fn(goja.Undefined(), vals...)
	})
	if err != nil {
		return nil, err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// Defines reports whether a callable global exists.
func (e *GojaEngine) Defines(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := goja.AssertFunction(e.vm.Get(name))
	return ok
}

func (e *GojaEngine) interruptible(ctx context.Context, run func() (goja.Value, error)) (goja.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := run()
	if err != nil {
		if interruptedErr, ok := err.(*goja.InterruptedError); ok {
			if cause := interruptedErr.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val, nil
}

func (e *GojaEngine) RegisterHost(host Host) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	recapObj := e.vm.NewObject()
	if err := recapObj.Set("title", host.Title()); err != nil {
		return err
	}
	if err := e.vm.Set("recap", recapObj); err != nil {
		return err
	}

	return e.vm.Set("log", func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Arguments[0].String()
		}
		host.Log(msg)
		return goja.Undefined()
	})
}
