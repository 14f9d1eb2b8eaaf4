package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"sessionkeeper/internal/notifier"
	"sessionkeeper/internal/platform"
	"sessionkeeper/internal/resolve"
	"sessionkeeper/internal/schedule"
	logx "sessionkeeper/pkg/logx"
)

type RegisterOptions struct {
	// DryRun renders the descriptors without touching the host.
	DryRun bool
}

type RegisterReport struct {
	Handle      platform.RegistrationHandle
	Schedule    schedule.Schedule
	Wake        []schedule.WakeInstant
	Command     string
	Descriptors []platform.Descriptor
	// Warnings are non-fatal: *resolve.ResolutionError,
	// *platform.PlatformCapabilityError.
	Warnings []error
	DryRun   bool
}

// Registration builds the adapter input for the loaded config. The returned
// warnings carry a command resolution failure, if any.
func (a *App) Registration(ctx context.Context) (platform.Registration, []error, error) {
	var warnings []error

	command := a.cfg.CommandFor(a.opts.GOOS)
	if a.opts.GOOS != "windows" {
		resolved, err := a.resolver.Resolve(command)
		var rerr *resolve.ResolutionError
		switch {
		case errors.As(err, &rerr):
			warnings = append(warnings, rerr)
			a.log.Warn("command not found in known install locations; registering it unchanged",
				logx.String("command", command), logx.Int("searched", len(rerr.Searched)))
		case err != nil:
			return platform.Registration{}, nil, err
		default:
			command = resolved
		}
	}

	user := a.cfg.PlatformSettings.MacOS.Username
	if user == "" && a.opts.GOOS == "darwin" {
		user = os.Getenv("SUDO_USER")
	}

	reg := platform.Registration{
		Identity:   a.identity,
		Schedule:   a.sch,
		Wake:       schedule.PlanWake(a.sch, a.cfg.EnableWake),
		Command:    command,
		Executable: a.opts.Executable,
		ConfigPath: a.opts.ConfigPath,
		StateDir:   a.opts.StateDir,
		LogPath:    a.logPath,
		User:       user,
		Distro:     a.cfg.PlatformSettings.Windows.Distro,
	}
	if prev, ok, err := a.storedHandle(ctx); err != nil {
		a.log.Warn("state store unreadable; registering without the previous handle", logx.Err(err))
	} else if ok {
		reg.Previous = &prev
	}
	return reg, warnings, nil
}

// Register installs the schedule. Registering twice yields the same job set
// as registering once. On failure the previous registration stays recorded
// unless the adapter reports it could not roll back.
func (a *App) Register(ctx context.Context, ro RegisterOptions) (RegisterReport, error) {
	reg, warnings, err := a.Registration(ctx)
	if err != nil {
		return RegisterReport{}, err
	}
	rep := RegisterReport{
		Schedule: a.sch,
		Wake:     reg.Wake,
		Command:  reg.Command,
		Warnings: warnings,
		DryRun:   ro.DryRun,
	}

	if ro.DryRun {
		descs, err := a.adapter.Render(reg)
		if err != nil {
			return rep, err
		}
		rep.Descriptors = descs
		return rep, nil
	}

	pending := platform.RegistrationHandle{
		ID:       uuid.NewString(),
		Platform: a.adapter.Kind(),
		Identity: a.identity,
		State:    platform.StateUnregistered,
		Command:  reg.Command,
		Created:  a.opts.Now(),
	}
	if reg.Previous != nil {
		pending = *reg.Previous
		if pending.ID == "" {
			pending.ID = uuid.NewString()
		}
	}
	if pending.State != platform.StateRegistering && !pending.State.CanTransition(platform.StateRegistering) {
		return rep, fmt.Errorf("registration %s is %s", pending.ID, pending.State)
	}
	pending.State = platform.StateRegistering
	pending.Updated = a.opts.Now()
	if err := a.putHandle(ctx, pending); err != nil {
		return rep, fmt.Errorf("record registration: %w", err)
	}
	if reg.Previous == nil {
		reg.Previous = &platform.RegistrationHandle{ID: pending.ID, Identity: a.identity, Created: pending.Created}
	}

	a.log.Info("registering",
		logx.String("platform", string(a.adapter.Kind())),
		logx.String("identity", a.identity),
		logx.String("entries", a.sch.Summary()),
		logx.Bool("wake", len(reg.Wake) > 0))

	res, err := a.adapter.Register(ctx, reg)
	if err != nil {
		a.afterFailedRegister(ctx, reg.Previous, err)
		return rep, err
	}
	h := res.Handle
	if h.ID == "" {
		h.ID = pending.ID
	}
	h.State = platform.StateRegistered
	if err := a.putHandle(ctx, h); err != nil {
		return rep, fmt.Errorf("record registration: %w", err)
	}

	rep.Handle = h
	rep.Warnings = append(rep.Warnings, res.Warnings...)
	for _, w := range res.Warnings {
		a.log.Warn("platform capability", logx.Err(w))
	}
	a.notify(ctx, fmt.Sprintf("Registered %d sessions: %s", len(a.sch.Entries), a.sch.Summary()), notifier.PriorityLow, "calendar")
	return rep, nil
}

// afterFailedRegister puts the previous record back. Adapters either fail
// before changing the host or roll back, so the previous record still
// describes what is installed.
func (a *App) afterFailedRegister(ctx context.Context, prev *platform.RegistrationHandle, cause error) {
	var ioe *platform.RegistrationIOError
	if errors.As(cause, &ioe) && !ioe.RolledBack {
		a.log.Debug("registration failed before install", logx.String("op", ioe.Op), logx.Err(cause))
	}
	var err error
	if prev != nil && prev.State == platform.StateRegistered {
		err = a.putHandle(ctx, *prev)
	} else {
		err = a.deleteHandle(ctx)
	}
	if err != nil {
		a.log.Warn("restore registration record failed", logx.Err(err))
	}
}
