package config

import "sessionkeeper/internal/schedule"

// Config is the on-disk configuration.
//
// Exactly one of StartTime (simple mode) or Schedule (manual mode) must be
// present. Presence is tracked by key, so `"schedule": []` counts as present
// (and is then rejected as empty).
type Config struct {
	StartTime string        `json:"start_time,omitempty"`
	Schedule  []EntryConfig `json:"schedule,omitempty"`

	// WakeMinutesBefore is the default wake lead (minutes). Manual entries may override it.
	WakeMinutesBefore *int `json:"wake_minutes_before,omitempty"`

	Command    string `json:"command"`
	EnableWake bool   `json:"enable_wake"`

	// AllowedCommands restricts the base name of the command's first token.
	// Defaults to ["claude"]. "*" allows any command.
	AllowedCommands []string `json:"allowed_commands,omitempty"`

	// Notifications are POSTed to NotificationServer + "/" + NotificationTopic.
	NotificationTopic   string `json:"notification_topic,omitempty"`
	NotificationServer  string `json:"notification_server,omitempty"`
	NotificationTimeout string `json:"notification_timeout,omitempty"` // Go duration string

	Logging          LoggingConfig    `json:"logging,omitempty"`
	Storage          *StorageConfig   `json:"storage,omitempty"`
	PlatformSettings PlatformSettings `json:"platform_settings,omitempty"`

	hasStartTime bool
	hasSchedule  bool
}

type EntryConfig struct {
	Time              string `json:"time"`
	WakeMinutesBefore *int   `json:"wake_minutes_before,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	// File overrides the platform-conventional job log path.
	File string `json:"file,omitempty"`
}

// StorageConfig controls where registration handles and run history live.
//
// Example:
//
//	"storage": { "driver": "file", "path": "~/.local/state/sessionkeeper/state" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type PlatformSettings struct {
	MacOS   MacOSSettings   `json:"macos,omitempty"`
	Linux   LinuxSettings   `json:"linux,omitempty"`
	Windows WindowsSettings `json:"windows,omitempty"`
}

type MacOSSettings struct {
	DaemonLabel string `json:"daemon_label,omitempty"`
	// Username the per-entry daemons run as (LaunchDaemons run as root otherwise).
	Username string `json:"username,omitempty"`
	Command  string `json:"command,omitempty"`
}

type LinuxSettings struct {
	ServiceName string `json:"service_name,omitempty"`
	// WakeMethod is informational; "rtcwake" is the only documented value.
	WakeMethod string `json:"wake_method,omitempty"`
	Command    string `json:"command,omitempty"`
	// Method forces "systemd" or "cron"; empty or "auto" probes the host.
	Method string `json:"method,omitempty"`
}

type WindowsSettings struct {
	TaskName string `json:"task_name,omitempty"`
	// Command runs inside WSL.
	Command string `json:"command,omitempty"`
	// Distro selects a WSL distribution (wsl.exe -d). Empty uses the default.
	Distro string `json:"distro,omitempty"`
}

const (
	DefaultDaemonLabel        = "ClaudeScheduler"
	DefaultServiceName        = "claude-scheduler"
	DefaultTaskName           = "ClaudeScheduler"
	DefaultNotificationServer = "https://ntfy.sh"
	DefaultAllowedCommand     = "claude"
)

// HasStartTime reports whether the source document carried start_time.
func (c *Config) HasStartTime() bool { return c.hasStartTime }

// HasSchedule reports whether the source document carried schedule.
func (c *Config) HasSchedule() bool { return c.hasSchedule }

// ApplyDefaults fills omitted optional fields. Presence flags are untouched.
func (c *Config) ApplyDefaults() {
	if c.WakeMinutesBefore == nil {
		v := schedule.DefaultWakeMinutes
		c.WakeMinutesBefore = &v
	}
	if len(c.AllowedCommands) == 0 {
		c.AllowedCommands = []string{DefaultAllowedCommand}
	}
	if c.NotificationServer == "" {
		c.NotificationServer = DefaultNotificationServer
	}
	if c.PlatformSettings.MacOS.DaemonLabel == "" {
		c.PlatformSettings.MacOS.DaemonLabel = DefaultDaemonLabel
	}
	if c.PlatformSettings.Linux.ServiceName == "" {
		c.PlatformSettings.Linux.ServiceName = DefaultServiceName
	}
	if c.PlatformSettings.Windows.TaskName == "" {
		c.PlatformSettings.Windows.TaskName = DefaultTaskName
	}
	if c.Storage == nil {
		c.Storage = &StorageConfig{Driver: "file"}
	}
}

// CommandFor returns the command configured for goos ("darwin", "linux",
// "windows"), falling back to the top-level command.
func (c *Config) CommandFor(goos string) string {
	var override string
	switch goos {
	case "darwin":
		override = c.PlatformSettings.MacOS.Command
	case "linux":
		override = c.PlatformSettings.Linux.Command
	case "windows":
		override = c.PlatformSettings.Windows.Command
	}
	if override != "" {
		return override
	}
	return c.Command
}
