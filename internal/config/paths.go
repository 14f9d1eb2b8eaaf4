package config

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under platform-conventional locations.
const AppName = "SessionKeeper"

// Env is the subset of the process environment the path helpers read.
type Env struct {
	GOOS string
	Home string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (e Env) getenv(k string) string {
	if e.Getenv != nil {
		return e.Getenv(k)
	}
	return os.Getenv(k)
}

// DefaultLogPath returns the platform-conventional job log file:
//
//	darwin:  ~/Library/Logs/SessionKeeper/sessionkeeper.log
//	windows: %LOCALAPPDATA%\SessionKeeper\sessionkeeper.log
//	other:   $XDG_STATE_HOME/sessionkeeper/sessionkeeper.log (~/.local/state)
func DefaultLogPath(env Env) string {
	switch env.GOOS {
	case "darwin":
		return filepath.Join(env.Home, "Library", "Logs", AppName, "sessionkeeper.log")
	case "windows":
		base := env.getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(env.Home, "AppData", "Local")
		}
		return filepath.Join(base, AppName, "sessionkeeper.log")
	default:
		return filepath.Join(stateHome(env), "sessionkeeper", "sessionkeeper.log")
	}
}

// DefaultStateDir returns where the state store and staging area live.
func DefaultStateDir(env Env) string {
	switch env.GOOS {
	case "darwin":
		return filepath.Join(env.Home, "Library", "Application Support", AppName)
	case "windows":
		base := env.getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(env.Home, "AppData", "Local")
		}
		return filepath.Join(base, AppName)
	default:
		return filepath.Join(stateHome(env), "sessionkeeper")
	}
}

func stateHome(env Env) string {
	if v := env.getenv("XDG_STATE_HOME"); v != "" {
		return v
	}
	return filepath.Join(env.Home, ".local", "state")
}

// LogPath resolves the job log path for this config.
func (c *Config) LogPath(env Env) string {
	if c.Logging.File != "" {
		return expandHome(c.Logging.File, env.Home)
	}
	return DefaultLogPath(env)
}

// StoragePath resolves the state store path for this config.
func (c *Config) StoragePath(env Env) string {
	if c.Storage != nil && c.Storage.Path != "" {
		return expandHome(c.Storage.Path, env.Home)
	}
	name := "state"
	if c.Storage != nil && (c.Storage.Driver == "sqlite" || c.Storage.Driver == "sqlite3") {
		name = "state.db"
	}
	return filepath.Join(DefaultStateDir(env), name)
}

func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if len(p) > 1 && p[0] == '~' && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
