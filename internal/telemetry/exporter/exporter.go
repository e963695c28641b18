// Package exporter wires the gateway's optional continuous-profiling sink.
// It is an ambient-stack concern (spec.md's Non-goals exclude an
// observability layer as a *feature*, not the underlying profiling hook
// itself), grounded in the teacher's Pyroscope wiring.
package exporter

import (
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// Config configures the Pyroscope sink for one gateway process.
type Config struct {
	// Enabled toggles whether profiling is started at all.
	Enabled bool

	// ServerAddress is the Pyroscope server URL, e.g. "http://localhost:4040".
	ServerAddress string

	// BuildVersion tags every profile with the running binary's version.
	BuildVersion string

	// PageTag is attached as a "page" tag so flame graphs can be filtered
	// by which page was active when a hot path was sampled.
	PageTag string

	// ProfileTypes selects which profile kinds to collect. Defaults to
	// {cpu, alloc_objects, inuse_objects} when empty.
	ProfileTypes []string
}

func (c Config) profileTypes() []string {
	if len(c.ProfileTypes) > 0 {
		return c.ProfileTypes
	}
	return []string{"cpu", "alloc_objects", "inuse_objects"}
}

// Sink owns the running profiler and exposes Stop for graceful shutdown.
type Sink struct {
	profiler *pyroscope.Profiler
}

// Start begins continuous profiling under the name "xtouch-gw" when cfg is
// enabled, returning a no-op Sink otherwise so callers never need a nil
// check.
func Start(cfg Config) (*Sink, error) {
	if !cfg.Enabled {
		return &Sink{}, nil
	}

	types := cfg.profileTypes()
	profileTypes := make([]pyroscope.ProfileType, 0, len(types))
	for _, pt := range types {
		profileType, err := parseProfileType(pt)
		if err != nil {
			return nil, fmt.Errorf("exporter: invalid profile type %q: %w", pt, err)
		}
		profileTypes = append(profileTypes, profileType)
		switch pt {
		case "mutex_count", "mutex_duration":
			runtime.SetMutexProfileFraction(5)
		case "block_count", "block_duration":
			runtime.SetBlockProfileRate(5)
		}
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "xtouch-gw",
		ServerAddress:   cfg.ServerAddress,
		Tags: map[string]string{
			"version": cfg.BuildVersion,
			"page":    cfg.PageTag,
		},
		ProfileTypes: profileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("exporter: failed to start profiler: %w", err)
	}
	return &Sink{profiler: p}, nil
}

// Stop halts profiling. Safe to call on a disabled (no-op) Sink.
func (s *Sink) Stop() error {
	if s == nil || s.profiler == nil {
		return nil
	}
	return s.profiler.Stop()
}

func parseProfileType(pt string) (pyroscope.ProfileType, error) {
	switch pt {
	case "cpu":
		return pyroscope.ProfileCPU, nil
	case "alloc_objects":
		return pyroscope.ProfileAllocObjects, nil
	case "alloc_space":
		return pyroscope.ProfileAllocSpace, nil
	case "inuse_objects":
		return pyroscope.ProfileInuseObjects, nil
	case "inuse_space":
		return pyroscope.ProfileInuseSpace, nil
	case "goroutines":
		return pyroscope.ProfileGoroutines, nil
	case "mutex_count":
		return pyroscope.ProfileMutexCount, nil
	case "mutex_duration":
		return pyroscope.ProfileMutexDuration, nil
	case "block_count":
		return pyroscope.ProfileBlockCount, nil
	case "block_duration":
		return pyroscope.ProfileBlockDuration, nil
	default:
		return 0, fmt.Errorf("unknown profile type: %s", pt)
	}
}
