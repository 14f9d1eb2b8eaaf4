package platform

import (
	"context"
	"time"
)

// UnitState is the slice of a unit's D-Bus properties status needs.
type UnitState struct {
	Name        string
	LoadState   string // loaded, not-found, ...
	ActiveState string // active, inactive, failed, ...
	SubState    string // waiting, running, dead, ...
	// NextElapse is a timer's next realtime trigger (zero for other units).
	NextElapse time.Time
}

func (s UnitState) Found() bool { return s.LoadState != "" && s.LoadState != "not-found" }

// UnitManager is the systemd manager API the systemd adapter drives.
type UnitManager interface {
	Reload(ctx context.Context) error
	Enable(ctx context.Context, units ...string) error
	Disable(ctx context.Context, units ...string) error
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	State(ctx context.Context, unit string) (UnitState, error)
	Close() error
}

// UnitManagerFactory connects to the system manager, or to the calling
// user's manager when user is true.
type UnitManagerFactory func(ctx context.Context, user bool) (UnitManager, error)
