package platform

import (
	"context"
	"time"

	"sessionkeeper/internal/schedule"
	logx "sessionkeeper/pkg/logx"
)

// pmsetLayout is the date format `pmset schedule` expects.
const pmsetLayout = "01/02/06 15:04:05"

// ArmWake replaces the host's scheduled wake events with one per wake time
// for the rest of today and all of tomorrow. pmset has no recurring wake, so
// the wake daemon calls this again after every entry fires.
func ArmWake(ctx context.Context, run Runner, log logx.Logger, times []schedule.TimeOfDay, now time.Time) ([]time.Time, error) {
	y, m, d := now.Date()
	end := time.Date(y, m, d+2, 0, 0, 0, 0, now.Location())
	at := schedule.WakeWindow(times, now, end.Sub(now)-time.Second)

	if _, err := run.Run(ctx, Cmd{Name: "pmset", Args: []string{"schedule", "cancelall"}}); err != nil {
		return nil, ioErr("pmset cancelall", "", err)
	}
	for _, t := range at {
		if _, err := run.Run(ctx, Cmd{Name: "pmset", Args: []string{"schedule", "wake", t.Format(pmsetLayout)}}); err != nil {
			return nil, ioErr("pmset wake", t.Format(pmsetLayout), err)
		}
		log.Debug("wake armed", logx.Time("at", t))
	}
	return at, nil
}
