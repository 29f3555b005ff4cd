// Package core wires the Stdio Framer, Workspace Manager, and Run
// Executor into the strictly-FIFO request loop described in spec.md §2
// and §5: one request in flight at a time, queued work drained serially.
package core

import (
	"errors"
	"io"
	"log/slog"

	"testworker/pkg/protocol"
	"testworker/pkg/runner"
	"testworker/pkg/stdioframe"
	"testworker/pkg/workspace"
)

// Worker is the process's single request loop.
type Worker struct {
	framer   *stdioframe.Framer
	manager  *workspace.Manager
	executor *runner.Executor
}

// New builds a Worker from its three collaborators.
func New(framer *stdioframe.Framer, manager *workspace.Manager, executor *runner.Executor) *Worker {
	return &Worker{framer: framer, manager: manager, executor: executor}
}

// Run drains requests until end of input, returning nil on a clean EOF.
func (w *Worker) Run() error {
	for {
		req, err := w.framer.Next()
		if err != nil {
			var malformed *stdioframe.ErrMalformed
			if errors.As(err, &malformed) {
				slog.Error("protocol error: dropping malformed request", "error", malformed.Err)
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		result := w.handle(req)
		if err := w.framer.EmitResult(result); err != nil {
			slog.Error("failed to emit result", "id", req.ID, "error", err)
		}
	}
}

func (w *Worker) handle(req *protocol.Request) *protocol.Result {
	prepared, err := w.manager.Prepare(req)
	if err != nil {
		slog.Error("preparation failed", "id", req.ID, "error", err)
		return protocol.NewEmptyResult(req.ID, "preparation error: "+err.Error())
	}
	defer w.manager.Release(prepared)

	return w.executor.Run(req.ID, prepared, req.ForceExit)
}
