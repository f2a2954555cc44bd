package ime

import "errors"

// ErrUnsupportedPlatform is returned by platform operations where no input
// method framework integration exists.
var ErrUnsupportedPlatform = errors.New("ime: input method framework not supported on this platform")

// Platform defines the interface that each platform integration must
// implement. The Engine handles conversion; platform implementations handle
// system registration.
type Platform interface {
	// Name returns the platform name (e.g., "linux").
	Name() string

	// Available returns true if this platform implementation is available.
	Available() bool

	// Install registers the input method for the current user.
	Install() error

	// Uninstall removes the registration.
	Uninstall() error

	// IsInstalled returns true if the input method is registered.
	IsInstalled() bool

	// IsActive returns true if the input method is currently selected.
	IsActive() bool

	// Activate makes this the active input method.
	Activate() error
}

// PlatformConfig contains platform-specific configuration.
type PlatformConfig struct {
	// BusName is the D-Bus name the host process owns.
	BusName string

	// EngineName is the engine name registered with the framework.
	EngineName string

	// ComponentDir is where the framework reads component descriptions.
	ComponentDir string

	// ExecPath is the host binary the framework launches. Empty uses the
	// running executable.
	ExecPath string

	// DisplayName is shown to users in system settings.
	DisplayName string

	// Language is the BCP 47 tag the framework files the engine under.
	Language string

	// Layout is the keyboard layout the engine expects.
	Layout string

	// Symbol is the short label shown in the panel.
	Symbol string
}

// DefaultPlatformConfig returns platform-appropriate default configuration.
func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		BusName:     "org.freedesktop.IBus.Kanaime",
		EngineName:  "kanaime",
		DisplayName: "Kanaime",
		Language:    "ja",
		Layout:      "us",
		Symbol:      "あ",
	}
}

// PlatformInfo describes the input method framework on a platform.
type PlatformInfo struct {
	Name        string
	Framework   string
	Description string
}

// SupportedPlatforms lists the framework integrations and portable hosts.
var SupportedPlatforms = []PlatformInfo{
	{
		Name:        "Linux",
		Framework:   "IBus",
		Description: "D-Bus engine launched by ibus-daemon",
	},
	{
		Name:        "any",
		Framework:   "terminal",
		Description: "interactive tcell screen (kanaimectl try)",
	},
	{
		Name:        "any",
		Framework:   "websocket",
		Description: "JSON key events over a websocket (kanaimectl serve)",
	},
	{
		Name:        "any",
		Framework:   "pipe",
		Description: "stdin to stdout transliteration (kanaimectl convert)",
	},
}
