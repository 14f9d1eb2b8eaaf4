package config

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"sessionkeeper/internal/schedule"
)

var (
	ErrBothModes    = errors.New("start_time and schedule are mutually exclusive; set exactly one")
	ErrNoMode       = errors.New("either start_time (simple mode) or schedule (manual mode) is required")
	ErrNoCommand    = errors.New("command is required")
	ErrNotAllowlist = errors.New("command is not in allowed_commands")
)

// Mode reports which configuration shape is in use. It is only meaningful
// after Validate succeeded.
func (c *Config) Mode() schedule.Mode {
	if c.hasSchedule {
		return schedule.ModeManual
	}
	return schedule.ModeSimple
}

// Validate checks the whole document and returns a *ConfigError on the first
// problem. It never touches the OS.
func (c *Config) Validate() error {
	switch {
	case c.hasStartTime && c.hasSchedule:
		return &ConfigError{Err: ErrBothModes}
	case !c.hasStartTime && !c.hasSchedule:
		return &ConfigError{Err: ErrNoMode}
	}

	if _, err := c.BuildSchedule(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Command) == "" {
		return &ConfigError{Field: "command", Err: ErrNoCommand}
	}
	for _, field := range []struct{ name, cmd string }{
		{"command", c.Command},
		{"platform_settings.macos.command", c.PlatformSettings.MacOS.Command},
		{"platform_settings.linux.command", c.PlatformSettings.Linux.Command},
		{"platform_settings.windows.command", c.PlatformSettings.Windows.Command},
	} {
		if field.cmd == "" {
			continue
		}
		if err := checkAllowed(field.cmd, c.AllowedCommands); err != nil {
			return &ConfigError{Field: field.name, Err: err}
		}
	}

	if _, err := c.NotifyTimeout(); err != nil {
		return err
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return configErr("storage.driver", "unknown driver %q", c.Storage.Driver)
		}
		if _, err := c.StorageBusyTimeout(); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.PlatformSettings.Linux.Method) {
	case "", "auto", "systemd", "cron":
	default:
		return configErr("platform_settings.linux.method", "want auto, systemd or cron, got %q", c.PlatformSettings.Linux.Method)
	}
	return nil
}

// BuildSchedule derives the Schedule for the configured mode.
func (c *Config) BuildSchedule() (schedule.Schedule, error) {
	lead := schedule.DefaultWakeMinutes
	if c.WakeMinutesBefore != nil {
		lead = *c.WakeMinutesBefore
	}

	if c.hasStartTime && !c.hasSchedule {
		anchor, err := schedule.ParseTimeOfDay(c.StartTime)
		if err != nil {
			return schedule.Schedule{}, &ConfigError{Field: "start_time", Err: err}
		}
		s := schedule.Derive(anchor).WithWakeLead(lead)
		if err := s.Validate(); err != nil {
			return schedule.Schedule{}, &ConfigError{Field: "wake_minutes_before", Err: err}
		}
		return s, nil
	}

	entries := make([]schedule.Entry, 0, len(c.Schedule))
	for i, ec := range c.Schedule {
		t, err := schedule.ParseTimeOfDay(ec.Time)
		if err != nil {
			return schedule.Schedule{}, configErr("schedule", "entry %d: %v", i, err)
		}
		w := lead
		if ec.WakeMinutesBefore != nil {
			w = *ec.WakeMinutesBefore
		}
		entries = append(entries, schedule.Entry{Time: t, WakeMinutesBefore: w})
	}
	s, err := schedule.NewManual(entries)
	if err != nil {
		return schedule.Schedule{}, &ConfigError{Field: "schedule", Err: err}
	}
	return s, nil
}

func checkAllowed(command string, allowed []string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ErrNoCommand
	}
	// Accept both separators regardless of host OS; the Windows override is
	// validated on every host.
	base := path.Base(strings.ReplaceAll(fields[0], `\`, "/"))
	if ext := path.Ext(base); strings.EqualFold(ext, ".exe") {
		base = strings.TrimSuffix(base, ext)
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, base) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (allowed: %s)", ErrNotAllowlist, base, strings.Join(allowed, ", "))
}
