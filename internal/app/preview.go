package app

import (
	"time"

	"sessionkeeper/internal/schedule"
)

// Preview is the schedule as it would be registered.
type Preview struct {
	Mode    schedule.Mode
	Anchor  schedule.TimeOfDay
	Entries []schedule.Entry
	// Gaps[i] is the minutes from entry i to the next, wrapping.
	Gaps      []int
	Wake      []schedule.WakeInstant
	NextFires []time.Time
	Command   string
}

func (a *App) Preview() (Preview, error) {
	next, err := schedule.NextFires(a.sch.Times(), a.opts.Now())
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Mode:      a.sch.Mode,
		Anchor:    a.sch.Anchor,
		Entries:   a.sch.Entries,
		Gaps:      a.sch.Gaps(),
		Wake:      schedule.PlanWake(a.sch, a.cfg.EnableWake),
		NextFires: next,
		Command:   a.cfg.CommandFor(a.opts.GOOS),
	}, nil
}
