//go:build !portmidi

package commands

import (
	"github.com/juliencr/xtouch-gw/internal/logger"
	"github.com/juliencr/xtouch-gw/internal/surface"
	"github.com/juliencr/xtouch-gw/internal/surface/simulated"
)

// openEndpointPair opens the in/out wire endpoints for a surface or
// bridge-target app. This build carries no CGo MIDI binding (see
// internal/surface/portmidi and DESIGN.md): it always hands back a shared
// in-memory loopback pair so the gateway still runs end to end, against
// simulated hardware, without one. Build with -tags portmidi for the real
// backend.
func openEndpointPair(name, inputMatch, outputMatch string) (surface.InputEndpoint, surface.Endpoint, error) {
	logger.Warn("no portmidi build tag set, using simulated loopback endpoint",
		logger.App(name), logger.Endpoint(inputMatch))
	ep := simulated.New()
	return ep, ep, nil
}
