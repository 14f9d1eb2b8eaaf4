package platform

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/coreos/go-systemd/v22/util"

	logx "sessionkeeper/pkg/logx"
)

// Probe picks the adapter for the host.
type Probe struct {
	GOOS string
	// LinuxMethod is "auto" (or empty), "systemd" or "cron".
	LinuxMethod string
	// SystemdRunning defaults to util.IsRunningSystemd.
	SystemdRunning func() bool
}

// Detect returns the adapter for p.GOOS (runtime.GOOS when empty).
func (p Probe) Detect(opts Options) (Adapter, error) {
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "darwin":
		return NewLaunchd(opts), nil
	case "windows":
		return NewTaskScheduler(opts), nil
	case "linux":
		switch strings.ToLower(strings.TrimSpace(p.LinuxMethod)) {
		case "systemd":
			return NewSystemd(opts), nil
		case "cron":
			return NewCron(opts), nil
		case "", "auto":
			running := p.SystemdRunning
			if running == nil {
				running = util.IsRunningSystemd
			}
			if running() {
				return NewSystemd(opts), nil
			}
			opts.Log.Debug("systemd not running; using crontab", logx.String("goos", goos))
			return NewCron(opts), nil
		default:
			return nil, fmt.Errorf("unknown linux method %q", p.LinuxMethod)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}

// ForKind builds the adapter that created a handle, so unregister and status
// work even if the probe would now choose differently.
func ForKind(kind Kind, opts Options) (Adapter, error) {
	switch kind {
	case KindLaunchd:
		return NewLaunchd(opts), nil
	case KindSystemd:
		return NewSystemd(opts), nil
	case KindCron:
		return NewCron(opts), nil
	case KindTaskScheduler:
		return NewTaskScheduler(opts), nil
	default:
		return nil, fmt.Errorf("%w: adapter %q", ErrUnsupported, kind)
	}
}
