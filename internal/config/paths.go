// Package config provides configuration management for bikeshare.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds all the path configurations for bikeshare.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/bikeshare)
	ConfigDir string

	// DataDir is the directory for data files (~/.local/share/bikeshare)
	DataDir string

	// RuntimeDir is the directory for runtime files like sockets, PID and lock files
	RuntimeDir string
}

// DefaultPaths returns the default paths. BIKESHARE_HOME, when set, roots
// every directory under one base; otherwise the XDG Base Directory layout
// is used. On Windows, it uses %APPDATA% instead.
func DefaultPaths() *Paths {
	if base := os.Getenv("BIKESHARE_HOME"); base != "" {
		return &Paths{
			ConfigDir:  base,
			DataDir:    filepath.Join(base, "data"),
			RuntimeDir: filepath.Join(base, "run"),
		}
	}

	home := homeDir()

	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}

		return &Paths{
			ConfigDir:  filepath.Join(appData, "bikeshare"),
			DataDir:    filepath.Join(localAppData, "bikeshare"),
			RuntimeDir: filepath.Join(localAppData, "bikeshare", "run"),
		}
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join(home, ".bikeshare", "run")
	} else {
		runtimeDir = filepath.Join(runtimeDir, "bikeshare")
	}

	return &Paths{
		ConfigDir:  filepath.Join(configHome, "bikeshare"),
		DataDir:    filepath.Join(dataHome, "bikeshare"),
		RuntimeDir: runtimeDir,
	}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// DatabaseFile returns the path to the SQLite table store.
func (p *Paths) DatabaseFile() string {
	return filepath.Join(p.DataDir, "bikeshare.db")
}

// SocketFile returns the path to the intake Unix domain socket.
func (p *Paths) SocketFile() string {
	return filepath.Join(p.RuntimeDir, "bikeshare.sock")
}

// PIDFile returns the path to the daemon PID file.
func (p *Paths) PIDFile() string {
	return filepath.Join(p.RuntimeDir, "bikeshared.pid")
}

// LockFile returns the path to the cross-process pipeline lock.
func (p *Paths) LockFile() string {
	return filepath.Join(p.RuntimeDir, "pipeline.lock")
}

// EnsureDirectories creates all necessary directories.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.DataDir, p.RuntimeDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return os.Getenv("USERPROFILE")
		}
		return os.Getenv("HOME")
	}
	return home
}
