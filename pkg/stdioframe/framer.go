// Package stdioframe implements the newline-delimited JSON protocol the
// worker speaks with the parent daemon: one Request per line on the input
// side, one Result per line on the output side, and nothing else ever
// reaching the output side.
package stdioframe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"testworker/pkg/protocol"
)

// ErrMalformed wraps a line that failed to parse as JSON. The caller logs
// it to the diagnostics channel and keeps reading; no Result is emitted
// for it, since there is no id to echo.
type ErrMalformed struct {
	Line []byte
	Err  error
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("malformed request line: %v", e.Err)
}

func (e *ErrMalformed) Unwrap() error { return e.Err }

// Framer reads Requests from an input stream and writes Results to an
// output stream. It is the only code path permitted to write to that
// output stream.
type Framer struct {
	reader *bufio.Reader

	mu  sync.Mutex
	out io.Writer
}

// New builds a Framer reading from r and writing completed Results to w.
// w should be a handle nothing else in the process holds a reference to;
// see Guard for enforcing that structurally.
func New(r io.Reader, w io.Writer) *Framer {
	return &Framer{
		reader: bufio.NewReader(r),
		out:    w,
	}
}

// Next returns the next well-formed Request, skipping blank and
// whitespace-only lines. It returns io.EOF when the input is exhausted,
// or *ErrMalformed for a non-empty line that failed to parse as JSON —
// callers should log that and call Next again to continue the stream.
func (f *Framer) Next() (*protocol.Request, error) {
	for {
		line, err := f.reader.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		var req protocol.Request
		if jsonErr := json.Unmarshal(trimmed, &req); jsonErr != nil {
			if err != nil && err != io.EOF {
				return nil, err
			}
			return nil, &ErrMalformed{Line: append([]byte(nil), trimmed...), Err: jsonErr}
		}
		return &req, nil
	}
}

// EmitResult marshals and writes one Result as a single line. The whole
// line is written under a lock so no other write to the same writer can
// land between the first byte and the terminating newline.
func (f *Framer) EmitResult(res *protocol.Result) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	body = append(body, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	_, err = f.out.Write(body)
	return err
}
