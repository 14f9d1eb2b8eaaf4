package app

import (
	"context"

	"sessionkeeper/internal/platform"
	"sessionkeeper/internal/runner"
	"sessionkeeper/internal/schedule"
	"sessionkeeper/internal/storage"
	logx "sessionkeeper/pkg/logx"
)

// RunJob executes one fired entry. jobLog is the plain-text job log; the
// store and notifier come from the config.
func (a *App) RunJob(ctx context.Context, jobLog logx.Logger, ex runner.Executor, entry *schedule.TimeOfDay, argv []string) (storage.RunRecord, error) {
	r := &runner.Runner{
		Exec:   ex,
		Log:    jobLog,
		Notify: a.notif,
		Now:    a.opts.Now,
	}
	if st, err := a.openStore(); err != nil {
		jobLog.Warn("state store unavailable; run not recorded", logx.Err(err))
	} else if st != nil {
		r.Store = st
	}
	return r.Run(ctx, runner.Job{Entry: entry, Times: a.sch.Times(), Argv: argv})
}

// ArmWake schedules host wake events for the given wake times (macOS).
func (a *App) ArmWake(ctx context.Context, times []schedule.TimeOfDay) ([]string, error) {
	if len(times) == 0 {
		times = schedule.WakeTimes(schedule.PlanWake(a.sch, true))
	}
	run := a.opts.Platform.Runner
	if run == nil {
		run = platform.ExecRunner{Log: a.log}
	}
	at, err := platform.ArmWake(ctx, run, a.log, times, a.opts.Now())
	if err != nil {
		return nil, err
	}
	out := make([]string, len(at))
	for i, t := range at {
		out[i] = t.Format("2006-01-02 15:04")
	}
	return out, nil
}
