package app

import (
	"context"
	"time"

	"sessionkeeper/internal/logtail"
	"sessionkeeper/internal/platform"
	"sessionkeeper/internal/schedule"
	"sessionkeeper/internal/storage"
	logx "sessionkeeper/pkg/logx"
)

type StatusOptions struct {
	// Runs is how many recent run records to include.
	Runs int
	// LogLines is how many trailing job log lines to include.
	LogLines int
}

type StatusReport struct {
	State    platform.State
	Platform platform.Kind
	Identity string
	Handle   *platform.RegistrationHandle
	Host     platform.Status

	Mode    schedule.Mode
	Entries []schedule.Entry
	Wake    []schedule.WakeInstant
	// NextFires is empty unless registered.
	NextFires []time.Time
	Now       time.Time

	Runs    []storage.RunRecord
	LogPath string
	Log     []string
	// Orphaned is set when jobs are installed but no registration is recorded.
	Orphaned bool
	// Others are registrations recorded under a different identity.
	Others []platform.RegistrationHandle
}

// NextRun returns the earliest next fire time.
func (r StatusReport) NextRun() (time.Time, bool) {
	if len(r.NextFires) == 0 {
		return time.Time{}, false
	}
	return r.NextFires[0], true
}

func (a *App) Status(ctx context.Context, so StatusOptions) (StatusReport, error) {
	now := a.opts.Now()
	rep := StatusReport{
		State:    platform.StateUnregistered,
		Platform: a.adapter.Kind(),
		Identity: a.identity,
		Mode:     a.sch.Mode,
		Entries:  a.sch.Entries,
		Wake:     schedule.PlanWake(a.sch, a.cfg.EnableWake),
		Now:      now,
		LogPath:  a.logPath,
	}

	h, ok, err := a.storedHandle(ctx)
	if err != nil {
		return rep, err
	}
	probe := platform.RegistrationHandle{Identity: a.identity, Platform: a.adapter.Kind()}
	if ok {
		rep.Handle = &h
		rep.State = h.State
		rep.Platform = h.Platform
		probe = h
	}

	host, err := a.adapterFor(probe).Status(ctx, probe)
	if err != nil {
		a.log.Warn("platform status failed", logx.Err(err))
		host.Detail = err.Error()
	}
	rep.Host = host
	if !ok && host.Registered {
		rep.Orphaned = true
	}
	if others, err := a.otherHandles(ctx); err != nil {
		a.log.Warn("list recorded registrations failed", logx.Err(err))
	} else {
		rep.Others = others
	}

	if rep.State == platform.StateRegistered {
		times := h.EntryTimes()
		if len(times) == 0 {
			times = a.sch.Times()
		}
		next, err := schedule.NextFires(times, now)
		if err != nil {
			return rep, err
		}
		rep.NextFires = next
	}

	if so.Runs > 0 {
		if st, err := a.openStore(); err != nil {
			return rep, err
		} else if st != nil {
			runs, err := st.RecentRuns(ctx, so.Runs)
			if err != nil {
				return rep, err
			}
			rep.Runs = runs
		}
	}
	if so.LogLines > 0 {
		lines, err := logtail.Last(a.opts.Fs, a.logPath, so.LogLines)
		if err != nil {
			a.log.Warn("read job log failed", logx.String("path", a.logPath), logx.Err(err))
		}
		rep.Log = lines
	}
	return rep, nil
}
