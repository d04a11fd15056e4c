package stream

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Token.Guard once the stream has closed.
var ErrClosed = errors.New("stream closed")

// Token is the per-stream cancellation token. It owns the single closed flag
// for one stream: every emission path runs under Guard, and the first Close
// wins, so no frame can be written after the stream transitions to closed.
type Token struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Close marks the token closed. The first call returns true; all later calls
// return false. Callers use the return value to decide ownership of the
// terminal frame.
func (t *Token) Close() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.closed = true
	close(t.done)
	return true
}

// Closed reports whether the token has been closed.
func (t *Token) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Done returns a channel closed when the token closes.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Guard runs fn only while the token is still open, atomically with respect
// to Close. Returns ErrClosed without running fn if the token closed first.
func (t *Token) Guard(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return fn()
}

// CloseGuard closes the token and runs fn iff this call performed the close.
// Used for terminal frame emission: exactly one caller observes the
// transition and writes the final frame.
func (t *Token) CloseGuard(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	close(t.done)
	return fn()
}
