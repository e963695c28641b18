// Package config defines the in-memory configuration snapshot the core
// consumes. Loading, hot-reload, and the on-disk format are outside the
// core's scope (see internal/bootstrap); this package only defines the
// shape and validates it.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
)

// SurfaceMode mirrors controlmap.Mode at the configuration boundary so
// config files can use plain strings ("pb-fader"/"cc-fader") without
// importing codec types.
type SurfaceMode string

const (
	SurfaceModePBFader SurfaceMode = "pb-fader"
	SurfaceModeCCFader SurfaceMode = "cc-fader"
)

// ToControlMapMode converts the config-level mode string to the
// controlmap.Mode the Router and Surface Driver operate on.
func (m SurfaceMode) ToControlMapMode() (controlmap.Mode, error) {
	switch m {
	case SurfaceModePBFader:
		return controlmap.ModePBFader, nil
	case SurfaceModeCCFader:
		return controlmap.ModeCCFader, nil
	default:
		return 0, fmt.Errorf("config: unknown surface mode %q", m)
	}
}

// SurfaceConfig describes the physical surface endpoints and wire mode.
type SurfaceConfig struct {
	InputEndpointMatch  string      `mapstructure:"input_endpoint_match" yaml:"input_endpoint_match" validate:"required"`
	OutputEndpointMatch string      `mapstructure:"output_endpoint_match" yaml:"output_endpoint_match" validate:"required"`
	Mode                SurfaceMode `mapstructure:"mode" yaml:"mode" validate:"required,oneof=pb-fader cc-fader"`
}

// PagingConfig describes the paging-key bindings used to turn a press into
// a page switch rather than a control action.
type PagingConfig struct {
	NavChannel uint8  `mapstructure:"nav_channel" yaml:"nav_channel"`
	PrevKey    string `mapstructure:"prev_key" yaml:"prev_key" validate:"required"`
	NextKey    string `mapstructure:"next_key" yaml:"next_key" validate:"required"`
}

// BindingKind distinguishes a driver-dispatched binding from a built-in
// raw-MIDI-bridge binding.
type BindingKind string

const (
	BindingDriver  BindingKind = "driver"
	BindingRawMidi BindingKind = "raw_midi"
)

// ControlBinding binds one logical control to an action on a named app, or
// to a raw-MIDI bridge target.
type ControlBinding struct {
	Kind   BindingKind `mapstructure:"kind" yaml:"kind" validate:"required,oneof=driver raw_midi"`
	App    string      `mapstructure:"app" yaml:"app" validate:"required_if=Kind driver"`
	Action string      `mapstructure:"action" yaml:"action"`
	Params []string    `mapstructure:"params" yaml:"params"`

	// BridgeTarget names the app whose endpoint pair receives the
	// translated wire bytes, for Kind == BindingRawMidi.
	BridgeTarget string `mapstructure:"bridge_target" yaml:"bridge_target" validate:"required_if=Kind raw_midi"`
}

// LCDConfig configures the two-line scribble-strip content for one page.
type LCDConfig struct {
	Labels [8]string `mapstructure:"labels" yaml:"labels"`
	Colors [8]string `mapstructure:"colors" yaml:"colors"`
}

// Passthrough names a binding whose execution is delegated to an external
// collaborator; the core accepts and stores the schema but never executes
// it itself.
type Passthrough struct {
	ControlID string            `mapstructure:"control_id" yaml:"control_id" validate:"required"`
	Params    map[string]string `mapstructure:"params" yaml:"params"`
}

// Page is one named control layout.
type Page struct {
	Name         string                    `mapstructure:"name" yaml:"name" validate:"required"`
	Controls     map[string]ControlBinding `mapstructure:"controls" yaml:"controls" validate:"dive"`
	LCD          LCDConfig                 `mapstructure:"lcd" yaml:"lcd"`
	Passthroughs []Passthrough             `mapstructure:"passthroughs" yaml:"passthroughs"`
}

// RawBridgeConfig configures the optional PB->CC transform rawbridge
// applies in the surface-to-target direction, for bridge targets that
// don't understand 14-bit pitch-bend.
type RawBridgeConfig struct {
	Enabled       bool  `mapstructure:"enabled" yaml:"enabled"`
	TargetChannel uint8 `mapstructure:"target_channel" yaml:"target_channel"`
	BaseCC        uint8 `mapstructure:"base_cc" yaml:"base_cc"`
}

// AppConfig names one application a driver talks to. An app is wired one
// of two ways, never both: if InputEndpointMatch/OutputEndpointMatch name a
// MIDI port, cmd/xtouch-gw wires the built-in rawbridge.Driver over it; if
// HTTPBaseURL is set instead, it wires the built-in httpdriver.Driver.
type AppConfig struct {
	Name                string `mapstructure:"name" yaml:"name" validate:"required"`
	InputEndpointMatch  string `mapstructure:"input_endpoint_match" yaml:"input_endpoint_match"`
	OutputEndpointMatch string `mapstructure:"output_endpoint_match" yaml:"output_endpoint_match"`

	RawBridge RawBridgeConfig `mapstructure:"raw_bridge" yaml:"raw_bridge"`

	// HTTPBaseURL and HTTPSecret configure a non-bridge app driven by the
	// built-in httpdriver.Driver: bearer-authenticated HTTP POSTs to a
	// local control API. Only meaningful when HasEndpoint() is false.
	HTTPBaseURL string `mapstructure:"http_base_url" yaml:"http_base_url"`
	HTTPSecret  string `mapstructure:"http_secret" yaml:"http_secret"`
}

// HasEndpoint reports whether a can be used for bidirectional MIDI
// bridging (spec.md §6: if both are absent, bridging is impossible and the
// core must warn, not refuse to start).
func (a AppConfig) HasEndpoint() bool {
	return a.InputEndpointMatch != "" || a.OutputEndpointMatch != ""
}

// Snapshot is the complete, read-only configuration the core consumes.
// Once published it is never mutated; hot-reload publishes a new Snapshot
// atomically and in-flight handlers that already captured a reference
// proceed against it.
type Snapshot struct {
	Surface               SurfaceConfig `mapstructure:"surface" yaml:"surface" validate:"required"`
	Paging                PagingConfig  `mapstructure:"paging" yaml:"paging" validate:"required"`
	Pages                 []Page        `mapstructure:"pages" yaml:"pages" validate:"required,min=1,dive"`
	PagesGlobal           Page          `mapstructure:"pages_global" yaml:"pages_global" validate:"-"`
	Apps                  []AppConfig   `mapstructure:"apps" yaml:"apps" validate:"dive"`
	StartupRefreshDelayMs int64         `mapstructure:"startup_refresh_delay_ms" yaml:"startup_refresh_delay_ms" validate:"gte=0"`
}

func (s Snapshot) startupRefreshDelayMs() int64 {
	if s.StartupRefreshDelayMs <= 0 {
		return 500
	}
	return s.StartupRefreshDelayMs
}

// StartupRefreshDelay returns the configured (or default 500ms) delay
// before the initial page refresh runs.
func (s Snapshot) StartupRefreshDelay() int64 {
	return s.startupRefreshDelayMs()
}

var validate = validator.New()

// Validate checks every struct tag, including each page's control
// bindings, and the cross-field invariant that validator tags alone can't
// express: every page's name is unique. pages_global carries no name and
// is skipped by the tag checks.
func (s Snapshot) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	seen := make(map[string]bool, len(s.Pages))
	for _, p := range s.Pages {
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate page name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// ResolveBindings merges a page's controls over pages_global: page-local
// bindings take precedence, matching spec.md §6 ("pages_global ... merged
// below each page").
func (s Snapshot) ResolveBindings(page Page) map[string]ControlBinding {
	merged := make(map[string]ControlBinding, len(s.PagesGlobal.Controls)+len(page.Controls))
	for id, b := range s.PagesGlobal.Controls {
		merged[id] = b
	}
	for id, b := range page.Controls {
		merged[id] = b
	}
	return merged
}

// PageByName finds a page by name.
func (s Snapshot) PageByName(name string) (Page, bool) {
	for _, p := range s.Pages {
		if p.Name == name {
			return p, true
		}
	}
	return Page{}, false
}
