package surface

import (
	"context"
	"io"
	"strings"
)

// Endpoint is a wire-level MIDI output: raw bytes written here reach the
// physical surface (or the simulated/portmidi backend standing in for
// one).
type Endpoint interface {
	io.Writer
	io.Closer
}

// InputEndpoint is a wire-level MIDI input. Listen starts the receive loop
// and must not return until ctx is done or the endpoint fails; onData is
// invoked with each chunk of raw bytes read, and must never be allowed to
// block the caller's send into onData (the implementation owns this
// guarantee, not the caller).
type InputEndpoint interface {
	Endpoint
	Listen(ctx context.Context, onData func([]byte)) error
}

// OpenBySubstring finds the first entry in hostPorts containing pattern as
// a case-insensitive substring, returning its index. Endpoint names vary
// across host-OS releases and driver versions, so exact match is too
// brittle; substring match against a configured pattern is the portable
// contract.
func OpenBySubstring(hostPorts []string, pattern string) (index int, ok bool) {
	needle := strings.ToLower(pattern)
	for i, name := range hostPorts {
		if strings.Contains(strings.ToLower(name), needle) {
			return i, true
		}
	}
	return 0, false
}
