package stdioframe

import (
	"io"
	"sync"
)

// Guard shadows a raw output handle (os.Stdout) so that at most one Writer
// bound to it can ever be handed out. Everything else in the process that
// might be tempted to fmt.Println or otherwise touch stdout is left with
// no reference to take: the real handle is claimed once, at startup, by
// the Framer's writer, and Discard stands in for anyone else.
type Guard struct {
	mu     sync.Mutex
	real   io.Writer
	claimed bool
}

// NewGuard wraps the real output handle.
func NewGuard(real io.Writer) *Guard {
	return &Guard{real: real}
}

// Claim returns the guarded writer exactly once. Subsequent calls return
// Discard, never the real handle, so a programming error that tries to
// build a second Framer over the same Guard fails closed rather than
// corrupting the response channel.
func (g *Guard) Claim() io.Writer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed {
		return io.Discard
	}
	g.claimed = true
	return g.real
}
