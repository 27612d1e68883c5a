package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/easypass/
//   - Linux:   ~/.local/share/easypass/
//   - Windows: %APPDATA%\easypass\
//
// Falls back to ~/.easypass if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux", "freebsd", "openbsd", "netbsd":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/easypass/
//   - Linux:   ~/.config/easypass/
//   - Windows: %APPDATA%\easypass\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir() // macOS uses same dir for config and data
	case "linux", "freebsd", "openbsd", "netbsd":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/easypass/
//   - Linux:   ~/.local/state/easypass/
//   - Windows: %LOCALAPPDATA%\easypass\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "easypass")
	case "linux", "freebsd", "openbsd", "netbsd":
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "easypass", "logs")
		}
		return filepath.Join(homeDir(), "AppData", "Local", "easypass", "logs")
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

// PlatformRuntimeDir returns the directory for the instance lock.
func PlatformRuntimeDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.TempDir(), "easypass")
	case "darwin":
		return macOSDataDir()
	default:
		// XDG_RUNTIME_DIR (usually /run/user/$UID)
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "easypass")
		}
		return filepath.Join(os.TempDir(), "easypass-"+strconv.Itoa(os.Getuid()))
	}
}

// LockPath returns the path of the single-instance lock file.
func LockPath() string {
	return filepath.Join(PlatformRuntimeDir(), "easypass.lock")
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// xdgDir resolves an XDG base directory, falling back to the given path
// under the home directory.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "easypass")
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, "easypass")...)
}

func macOSDataDir() string {
	return filepath.Join(homeDir(), "Library", "Application Support", "easypass")
}

func windowsDataDir() string {
	// %APPDATA% (roaming)
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "easypass")
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", "easypass")
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), ".easypass")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	// Search order:
	// 1. Current directory
	// 2. Config directory
	searchDirs := []string{
		".",
		EasypassDir(),
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
