// Package runner implements the Run Executor and Drain Supervisor from
// spec.md §4.3/§4.4: it drives the embedded JS realm through one
// request's prepared files, consumes the harness's event stream, and
// guarantees the run finishes even if user code leaked a timer or socket.
package runner

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"testworker/pkg/jsvm"
	"testworker/pkg/protocol"
	"testworker/pkg/workspace"
)

// Deadlines holds the two contract constants from spec.md §4.4, exposed
// as configuration so an operator can override them without touching the
// code (spec.md's expanded CLI surface, SPEC_FULL.md §6).
type Deadlines struct {
	NormalMS int
	ForceMS  int
}

// DefaultDeadlines are the values spec.md §4.4 mandates.
var DefaultDeadlines = Deadlines{NormalMS: 5000, ForceMS: 500}

// Executor runs one request's prepared files against the shared JS
// runtime and produces a Result.
type Executor struct {
	rt        *jsvm.Runtime
	deadlines Deadlines
}

// New builds an Executor bound to the given shared runtime.
func New(rt *jsvm.Runtime, deadlines Deadlines) *Executor {
	return &Executor{rt: rt, deadlines: deadlines}
}

// Run executes files in order and returns the Result for the request
// they belong to. id and forceExit come from the originating Request.
func (e *Executor) Run(id string, files []workspace.PreparedFile, forceExit bool) *protocol.Result {
	start := time.Now()

	var collected []event
	var diagnostics []string
	var internalErr error

	sup := newSupervisor(idleDeadline(forceExit, e.deadlines.ForceMS, e.deadlines.NormalMS), e.rt.Stop)
	go sup.watch()

	e.rt.Run(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				internalErr = fmt.Errorf("panic: %v", r)
			}
		}()

		if err := e.rt.Bootstrap(vm); err != nil {
			internalErr = err
			return
		}
		if err := e.rt.ResetHarness(vm); err != nil {
			internalErr = err
			return
		}

		e.rt.BindHostFunctions(vm,
			func(raw string) {
				sup.touch()
				ev, parseErr := parseEvent(raw)
				if parseErr != nil {
					internalErr = fmt.Errorf("parse harness event: %w", parseErr)
					return
				}
				collected = append(collected, ev)
			},
			func() {
				// The harness finishing its queue does not mean the event
				// loop is done: a leaked timer or socket keeps Run from
				// returning on its own. Termination is decided solely by
				// idle time observed by the supervisor below, not by this
				// signal, so there is nothing to do here but let Run
				// either drain naturally or be force-stopped.
			},
		)

		for _, f := range files {
			if err := e.rt.SetCurrentFile(vm, f.OriginalPath); err != nil {
				internalErr = err
				return
			}
			if _, err := e.rt.RequireFile(f.Path); err != nil {
				collected = append(collected, event{
					Kind:    "fail",
					Name:    f.OriginalPath,
					File:    f.OriginalPath,
					Message: err.Error(),
				})
			}
		}

		if err := e.rt.StartHarnessRun(vm); err != nil {
			internalErr = err
		}
	})

	sup.stop() // no-op if already stopped naturally

	result := &protocol.Result{
		ID:    id,
		Tests: []protocol.TestRecord{},
	}

	for _, ev := range collected {
		if ev.Kind == "diagnostic" {
			if !shouldSuppressDiagnostic(ev.Message) {
				diagnostics = append(diagnostics, ev.Message)
			}
			continue
		}
		if !ev.hasDetails() {
			continue
		}
		result.Total++
		switch ev.Kind {
		case "pass":
			result.Passed++
			result.Tests = append(result.Tests, protocol.TestRecord{
				Name: ev.Name, File: ev.File, Status: protocol.StatusPass, DurationMS: ev.DurationMS,
			})
		case "fail":
			result.Failed++
			result.Tests = append(result.Tests, protocol.TestRecord{
				Name: ev.Name, File: ev.File, Status: protocol.StatusFail, DurationMS: ev.DurationMS,
				Error: formatError(ev),
			})
		case "skip":
			result.Skipped++
			result.Tests = append(result.Tests, protocol.TestRecord{
				Name: ev.Name, File: ev.File, Status: protocol.StatusSkip,
			})
		}
	}

	if internalErr != nil && !sup.wasForced() {
		diagnostics = append(diagnostics, "runner error: "+internalErr.Error())
	}

	result.OK = result.Failed == 0
	result.DurationMS = float64(time.Since(start).Microseconds()) / 1000.0
	if len(diagnostics) > 0 {
		result.Diagnostics = joinLines(diagnostics)
	}
	return result
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
