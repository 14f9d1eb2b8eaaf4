//go:build !linux

package platform

import "context"

// DialUnits is the default UnitManagerFactory. systemd only exists on linux.
func DialUnits(ctx context.Context, user bool) (UnitManager, error) {
	_ = ctx
	_ = user
	return nil, ErrUnsupported
}
