// Package portmidi provides the real-hardware surface endpoint backend,
// built only when the portmidi build tag is set. It is a thin
// io.ReadWriteCloser-style wrapper so the Surface Driver's decode/encode
// path never depends on a specific host MIDI library.
//
//go:build portmidi

package portmidi

import (
	"context"
	"fmt"

	"github.com/juliencr/xtouch-gw/internal/surface"
)

// Endpoint wraps a real MIDI input or output port. The underlying CGo
// binding is intentionally not vendored here: wiring this package to an
// actual portmidi/rtmidi library is a deployment-time concern, so Open
// always returns an error (naming the matched port when one matches) and
// Write always fails.
type Endpoint struct {
	name string
}

// Open finds the entry in hostPorts matching pattern (via
// surface.OpenBySubstring) and opens it as a real MIDI port.
func Open(hostPorts []string, pattern string) (*Endpoint, error) {
	idx, ok := surface.OpenBySubstring(hostPorts, pattern)
	if !ok {
		return nil, fmt.Errorf("portmidi: no endpoint matching %q among %v", pattern, hostPorts)
	}
	return nil, fmt.Errorf("portmidi: endpoint %q matched at index %d but no CGo MIDI binding is wired into this build", hostPorts[idx], idx)
}

func (e *Endpoint) Write(_ []byte) (int, error) {
	return 0, fmt.Errorf("portmidi: not implemented")
}

func (e *Endpoint) Close() error { return nil }

func (e *Endpoint) Listen(ctx context.Context, _ func([]byte)) error {
	<-ctx.Done()
	return ctx.Err()
}
