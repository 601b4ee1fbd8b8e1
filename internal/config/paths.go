package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for gateway data.
type Paths struct {
	Data   string // ~/.local/share/wagate
	Config string // ~/.config/wagate
	State  string // ~/.local/state/wagate
}

// GetPaths returns the standard paths for gateway data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "wagate"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "wagate"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "wagate"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// RegistryPath returns the default session registry file.
func (p *Paths) RegistryPath() string {
	return filepath.Join(p.Data, "whatsapp-sessions.json")
}

// CredentialsPath returns the default per-session credential directory.
func (p *Paths) CredentialsPath() string {
	return filepath.Join(p.Data, "auth")
}

// LogPath returns the directory for log files.
func (p *Paths) LogPath() string {
	return filepath.Join(p.State, "log")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GetConfigDir returns the global config directory.
// WAGATE_CONFIG_DIR takes precedence over the XDG location.
func GetConfigDir() string {
	if dir := os.Getenv("WAGATE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return GetPaths().Config
}
