// Package simulated provides an in-memory loopback surface endpoint used
// by every test and by `xtouch-gw doctor`, standing in for real hardware
// without a MIDI driver on the host.
package simulated

import (
	"context"
	"sync"
)

// Endpoint is a simple in-memory input+output pair. Writes to Out are
// recorded; bytes fed to Inject are delivered to whatever Listen callback
// is registered.
type Endpoint struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
	onData  func([]byte)
}

// New returns a ready-to-use simulated endpoint.
func New() *Endpoint {
	return &Endpoint{}
}

// Write records b as a frame sent to the "surface" and returns len(b), nil
// unless the endpoint has been closed.
func (e *Endpoint) Write(b []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errClosed
	}
	cp := append([]byte(nil), b...)
	e.written = append(e.written, cp)
	return len(b), nil
}

// Written returns every frame recorded by Write so far, in order.
func (e *Endpoint) Written() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.written))
	copy(out, e.written)
	return out
}

// Listen registers onData and blocks until ctx is done; Close does not
// end it.
func (e *Endpoint) Listen(ctx context.Context, onData func([]byte)) error {
	e.mu.Lock()
	e.onData = onData
	e.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

// Inject delivers raw bytes to the registered Listen callback, simulating
// a physical event arriving on the input endpoint.
func (e *Endpoint) Inject(raw []byte) {
	e.mu.Lock()
	cb := e.onData
	e.mu.Unlock()
	if cb != nil {
		cb(raw)
	}
}

// Close marks the endpoint closed; further Writes fail.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

type simulatedError string

func (s simulatedError) Error() string { return string(s) }

const errClosed = simulatedError("simulated: endpoint closed")
