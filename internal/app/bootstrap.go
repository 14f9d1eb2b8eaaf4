package app

import (
	"fmt"
	"strings"
	"time"

	"sessionkeeper/internal/config"
	"sessionkeeper/internal/notifier"
	"sessionkeeper/internal/platform"
	"sessionkeeper/internal/storage"
)

func mapStorageConfig(cfg *config.Config, env config.Env) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "none" {
		return storage.Config{}, false, nil
	}
	if driver == "" {
		driver = "file"
	}
	path := cfg.StoragePath(env)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		busy, err := cfg.StorageBusyTimeout()
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	timeout, err := cfg.NotifyTimeout()
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:    strings.TrimSpace(cfg.NotificationTopic) != "",
		Server:     cfg.NotificationServer,
		Topic:      strings.TrimSpace(cfg.NotificationTopic),
		Timeout:    timeout,
		RatePerSec: 1,
		// Notifications are fire-and-forget; nothing is retried automatically.
		RetryMax:    0,
		DedupWindow: time.Minute,
	}, nil
}

// identityFor returns the job name prefix for the adapter kind.
func identityFor(cfg *config.Config, kind platform.Kind) string {
	switch kind {
	case platform.KindLaunchd:
		return cfg.PlatformSettings.MacOS.DaemonLabel
	case platform.KindTaskScheduler:
		return cfg.PlatformSettings.Windows.TaskName
	default:
		return cfg.PlatformSettings.Linux.ServiceName
	}
}
