//go:build portmidi

package commands

import (
	"fmt"

	"github.com/juliencr/xtouch-gw/internal/surface"
	"github.com/juliencr/xtouch-gw/internal/surface/portmidi"
)

// openEndpointPair opens real hardware MIDI ports matching inputMatch and
// outputMatch. portmidi.Open's CGo binding is not vendored in this pack
// (see DESIGN.md); wiring an actual host port enumeration and driver is a
// deployment-time concern left to whoever supplies that binding, so this
// always returns an error until it is.
func openEndpointPair(name, inputMatch, outputMatch string) (surface.InputEndpoint, surface.Endpoint, error) {
	in, err := portmidi.Open(nil, inputMatch)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s input endpoint: %w", name, err)
	}
	out, err := portmidi.Open(nil, outputMatch)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s output endpoint: %w", name, err)
	}
	return in, out, nil
}
