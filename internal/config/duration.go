package config

import (
	"strings"
	"time"
)

const (
	DefaultNotificationTimeout = 10 * time.Second
	DefaultBusyTimeout         = time.Second
)

// durationField parses an optional Go duration string ("10s", "1m30s").
// Empty or zero yields def.
func durationField(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, configErr(field, "%q is not a duration (want e.g. \"10s\")", raw)
	case d < 0:
		return 0, configErr(field, "must not be negative, got %s", d)
	case d == 0:
		return def, nil
	}
	return d, nil
}

// NotifyTimeout returns notification_timeout or its default.
func (c *Config) NotifyTimeout() (time.Duration, error) {
	return durationField("notification_timeout", c.NotificationTimeout, DefaultNotificationTimeout)
}

// StorageBusyTimeout returns storage.busy_timeout or its default.
func (c *Config) StorageBusyTimeout() (time.Duration, error) {
	if c.Storage == nil {
		return DefaultBusyTimeout, nil
	}
	return durationField("storage.busy_timeout", c.Storage.BusyTimeout, DefaultBusyTimeout)
}
