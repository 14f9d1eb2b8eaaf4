//go:build linux

package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// dbusUnits talks to systemd over D-Bus.
type dbusUnits struct {
	mu   sync.RWMutex
	conn *dbus.Conn
}

// DialUnits is the default UnitManagerFactory.
func DialUnits(ctx context.Context, user bool) (UnitManager, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &dbusUnits{conn: conn}, nil
}

func (m *dbusUnits) get() (*dbus.Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil, fmt.Errorf("systemd connection is closed")
	}
	return m.conn, nil
}

func (m *dbusUnits) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}

func (m *dbusUnits) Reload(ctx context.Context) error {
	conn, err := m.get()
	if err != nil {
		return err
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("failed to reload systemd daemon: %w", err)
	}
	return nil
}

func (m *dbusUnits) Enable(ctx context.Context, units ...string) error {
	conn, err := m.get()
	if err != nil {
		return err
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, units, false, true); err != nil {
		return fmt.Errorf("failed to enable %s: %w", strings.Join(units, ", "), err)
	}
	return nil
}

func (m *dbusUnits) Disable(ctx context.Context, units ...string) error {
	conn, err := m.get()
	if err != nil {
		return err
	}
	if _, err := conn.DisableUnitFilesContext(ctx, units, false); err != nil {
		if isNoSuchUnitErr(err) {
			return nil
		}
		return fmt.Errorf("failed to disable %s: %w", strings.Join(units, ", "), err)
	}
	return nil
}

// Start waits for the job to finish so activation failures surface here.
func (m *dbusUnits) Start(ctx context.Context, unit string) error {
	conn, err := m.get()
	if err != nil {
		return err
	}
	done := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, unit, "replace", done); err != nil {
		return fmt.Errorf("failed to start %s: %w", unit, err)
	}
	select {
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("failed to start %s: job %s", unit, res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *dbusUnits) Stop(ctx context.Context, unit string) error {
	conn, err := m.get()
	if err != nil {
		return err
	}
	if _, err := conn.StopUnitContext(ctx, unit, "replace", nil); err != nil {
		if isNoSuchUnitErr(err) {
			return nil
		}
		return fmt.Errorf("failed to stop %s: %w", unit, err)
	}
	return nil
}

func (m *dbusUnits) State(ctx context.Context, unit string) (UnitState, error) {
	conn, err := m.get()
	if err != nil {
		return UnitState{}, err
	}
	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return UnitState{Name: unit, LoadState: "not-found"}, nil
		}
		return UnitState{}, fmt.Errorf("failed to get status for %s: %w", unit, err)
	}
	st := UnitState{
		Name:        unit,
		LoadState:   stringProp(props, "LoadState"),
		ActiveState: stringProp(props, "ActiveState"),
		SubState:    stringProp(props, "SubState"),
	}
	if strings.HasSuffix(unit, ".timer") && st.Found() {
		if tp, err := conn.GetUnitTypePropertiesContext(ctx, unit, "Timer"); err == nil {
			st.NextElapse = usecProp(tp, "NextElapseUSecRealtime")
		}
	}
	return st, nil
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	// org.freedesktop.systemd1.NoSuchUnit
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not-found") || strings.Contains(es, "not loaded")
}

func stringProp(props map[string]interface{}, key string) string {
	v, _ := props[key].(string)
	return v
}

// usecProp reads a systemd microsecond timestamp.
func usecProp(props map[string]interface{}, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 && ts != ^uint64(0) {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}
