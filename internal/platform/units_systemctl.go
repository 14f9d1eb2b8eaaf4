package platform

import (
	"context"
	"strings"
	"time"
)

// systemctlUnits drives systemd through the systemctl CLI. It is the fallback
// when no D-Bus connection can be made (no session bus under sudo, containers).
type systemctlUnits struct {
	run  Runner
	user bool
}

// SystemctlUnits returns a UnitManager backed by `systemctl [--user]`.
func SystemctlUnits(run Runner, user bool) UnitManager {
	return &systemctlUnits{run: run, user: user}
}

func (m *systemctlUnits) ctl(ctx context.Context, args ...string) (Output, error) {
	if m.user {
		args = append([]string{"--user"}, args...)
	}
	return m.run.Run(ctx, Cmd{Name: "systemctl", Args: args})
}

func (m *systemctlUnits) Reload(ctx context.Context) error {
	_, err := m.ctl(ctx, "daemon-reload")
	return err
}

func (m *systemctlUnits) Enable(ctx context.Context, units ...string) error {
	_, err := m.ctl(ctx, append([]string{"enable"}, units...)...)
	return err
}

func (m *systemctlUnits) Disable(ctx context.Context, units ...string) error {
	_, err := m.ctl(ctx, append([]string{"disable"}, units...)...)
	return err
}

func (m *systemctlUnits) Start(ctx context.Context, unit string) error {
	_, err := m.ctl(ctx, "start", unit)
	return err
}

func (m *systemctlUnits) Stop(ctx context.Context, unit string) error {
	_, err := m.ctl(ctx, "stop", unit)
	return err
}

// showLayout is how `systemctl show` prints realtime timestamps.
const showLayout = "Mon 2006-01-02 15:04:05 MST"

func (m *systemctlUnits) State(ctx context.Context, unit string) (UnitState, error) {
	out, err := m.ctl(ctx, "show", unit, "--property=LoadState,ActiveState,SubState,NextElapseUSecRealtime")
	if err != nil {
		return UnitState{}, err
	}
	st := UnitState{Name: unit}
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch k {
		case "LoadState":
			st.LoadState = v
		case "ActiveState":
			st.ActiveState = v
		case "SubState":
			st.SubState = v
		case "NextElapseUSecRealtime":
			if t, err := time.Parse(showLayout, v); err == nil {
				st.NextElapse = t
			}
		}
	}
	return st, nil
}

func (m *systemctlUnits) Close() error { return nil }

// dialOrSystemctl prefers D-Bus and falls back to systemctl.
func dialOrSystemctl(opts Options) UnitManagerFactory {
	return func(ctx context.Context, user bool) (UnitManager, error) {
		um, err := DialUnits(ctx, user)
		if err == nil {
			return um, nil
		}
		opts.Log.Debug("systemd D-Bus unavailable; using systemctl")
		return SystemctlUnits(opts.Runner, user), nil
	}
}
