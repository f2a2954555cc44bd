package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kanaime/
//   - Linux:   ~/.local/share/kanaime/
//   - Windows: %APPDATA%\kanaime\
//
// Falls back to ~/.kanaime if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "kanaime")
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return filepath.Join(homeDir(), ".kanaime")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kanaime/
//   - Linux:   ~/.config/kanaime/
//   - Windows: %APPDATA%\kanaime\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	default:
		return PlatformDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/kanaime/
//   - Linux:   ~/.local/state/kanaime/
//   - Windows: %LOCALAPPDATA%\kanaime\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "kanaime")
	case "linux":
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	case "windows":
		return filepath.Join(windowsDir("LOCALAPPDATA", "Local"), "logs")
	default:
		return filepath.Join(PlatformDataDir(), "logs")
	}
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// xdgDir follows the XDG Base Directory Specification.
func xdgDir(env string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, "kanaime")
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, "kanaime")...)
}

func windowsDir(env, fallback string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, "kanaime")
	}
	return filepath.Join(homeDir(), "AppData", fallback, "kanaime")
}

// defaultComponentDir is where ibus-daemon looks for per-user components.
func defaultComponentDir() string {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "ibus", "component")
	}
	return filepath.Join(homeDir(), ".local", "share", "ibus", "component")
}

// SupportedConfigFormats lists the config file extensions, in lookup order.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile returns the first config.<ext> found in the working
// directory, then PlatformConfigDir, then PlatformDataDir. It returns ""
// when there is none.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir(), PlatformDataDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
