// Package jsvm owns the single JavaScript realm every request executes
// in. spec.md §2's "non-isolated mode" — all prepared files of every
// request sharing one set of globals and one event loop — is realized
// here with exactly one *goja.Runtime and one *eventloop.EventLoop, both
// constructed once at process startup and reused for the life of the
// worker. Everything in this package must only be touched from inside a
// RunOnLoop/Run callback; that is the loop goroutine's exclusive lane.
package jsvm

import (
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"

	"testworker/pkg/shim"
)

// Runtime is the process-wide JS realm.
type Runtime struct {
	loop *eventloop.EventLoop

	ready     bool
	reqModule *require.RequireModule
	setupErr  error
}

// New constructs the shared runtime. The realm itself (require registry,
// console binding, harness script) is lazily bootstrapped on first use,
// since goja_nodejs only lets us touch the *goja.Runtime from the loop
// goroutine.
func New() *Runtime {
	return &Runtime{
		loop: eventloop.NewEventLoop(eventloop.EnableConsole(false)),
	}
}

// ensureReady performs the one-time realm setup. Must be called from the
// loop goroutine.
func (r *Runtime) ensureReady(vm *goja.Runtime) error {
	if r.ready {
		return r.setupErr
	}
	r.ready = true

	registry := new(require.Registry)
	shim.RegisterModule(registry)
	r.reqModule = registry.Enable(vm)
	vm.Set("console", slogConsole(vm))

	if err := shim.LoadHarness(vm); err != nil {
		r.setupErr = fmt.Errorf("load harness: %w", err)
	}
	return r.setupErr
}

// slogConsole builds a console-shaped object whose methods forward to
// log/slog, so stray prints from user or harness code land on the
// diagnostics channel instead of anywhere near the response writer
// (spec.md §4.1's hygiene contract).
func slogConsole(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	bind := func(name string, level func(msg string, args ...any)) {
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
			level(formatArgs(call.Arguments))
			return goja.Undefined()
		})
	}
	bind("log", slog.Info)
	bind("info", slog.Info)
	bind("warn", slog.Warn)
	bind("error", slog.Error)
	bind("debug", slog.Debug)
	return obj
}

func formatArgs(args []goja.Value) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%v", a)
	}
	return s
}

// RunOnLoop schedules fn to run on the event-loop goroutine and returns
// immediately.
func (r *Runtime) RunOnLoop(fn func(vm *goja.Runtime)) {
	r.loop.RunOnLoop(fn)
}

// Run blocks the calling goroutine until the event loop has no more
// runnable jobs (every file loaded, every leaf test settled, and no
// leaked timer/interval remains) or until Stop is called from another
// goroutine. init runs first, on the loop goroutine, and should perform
// realm setup (via Bootstrap) plus kick off the request's work.
func (r *Runtime) Run(init func(vm *goja.Runtime)) {
	r.loop.Run(init)
}

// Stop forcibly stops the event loop, causing a blocked Run call to return
// early regardless of pending timers; those timers are not cancelled. This is the Go-level
// equivalent of destroying the framework's event stream in spec.md §4.4.
func (r *Runtime) Stop() {
	r.loop.StopNoWait()
}

// Bootstrap performs one-time realm setup if it hasn't run yet. Safe to
// call at the top of every request's init callback.
func (r *Runtime) Bootstrap(vm *goja.Runtime) error {
	return r.ensureReady(vm)
}

// RequireFile loads and executes absPath as a CommonJS module using the
// shared require registry, so sibling imports and node_modules resolve
// exactly as they would for the original file (spec.md §4.2's rationale).
func (r *Runtime) RequireFile(absPath string) (goja.Value, error) {
	return r.reqModule.Require(absPath)
}

// harnessMethod looks up one method of globalThis.__harness as a
// callable value.
func harnessMethod(vm *goja.Runtime, name string) (goja.Callable, error) {
	obj, ok := vm.Get("__harness").(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("jsvm: __harness is not installed")
	}
	fn, ok := goja.AssertFunction(obj.Get(name))
	if !ok {
		return nil, fmt.Errorf("jsvm: __harness.%s is not a function", name)
	}
	return fn, nil
}

// ResetHarness clears the harness's suite/queue state between requests;
// the realm persists (non-isolated mode), but each request's test tree
// starts empty.
func (r *Runtime) ResetHarness(vm *goja.Runtime) error {
	fn, err := harnessMethod(vm, "reset")
	if err != nil {
		return err
	}
	_, err = fn(goja.Undefined())
	return err
}

// SetCurrentFile tags subsequently-registered tests with the file they
// came from, matching TestRecord.File.
func (r *Runtime) SetCurrentFile(vm *goja.Runtime, path string) error {
	fn, err := harnessMethod(vm, "setCurrentFile")
	if err != nil {
		return err
	}
	_, err = fn(goja.Undefined(), vm.ToValue(path))
	return err
}

// StartHarnessRun kicks off leaf execution after all of a request's files
// have been loaded and have synchronously registered their suite trees.
func (r *Runtime) StartHarnessRun(vm *goja.Runtime) error {
	fn, err := harnessMethod(vm, "run")
	if err != nil {
		return err
	}
	_, err = fn(goja.Undefined())
	return err
}

// BindHostFunctions installs the two globals the harness reports through:
// __reportEvent (one JSON event per call) and __reportDone (queue drained
// naturally). Rebinding per request lets each request's callbacks close
// over that request's own event channel without leaking state between
// requests sharing the realm.
func (r *Runtime) BindHostFunctions(vm *goja.Runtime, onEvent func(string), onDone func()) {
	vm.Set("__reportEvent", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			onEvent(call.Arguments[0].String())
		}
		return goja.Undefined()
	})
	vm.Set("__reportDone", func(call goja.FunctionCall) goja.Value {
		onDone()
		return goja.Undefined()
	})
}
