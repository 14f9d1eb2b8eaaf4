package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"sessionkeeper/internal/notifier"
	"sessionkeeper/internal/platform"
	logx "sessionkeeper/pkg/logx"
)

type UnregisterOptions struct {
	// RemoveLogs also deletes the job log file.
	RemoveLogs bool
}

type UnregisterReport struct {
	// Removed is false when nothing was recorded; jobs matching the
	// identity prefix are still cleaned up.
	Removed    bool
	Handle     *platform.RegistrationHandle
	LogRemoved bool
}

// Unregister removes every job for the configured identity. It is a no-op
// when nothing is installed.
func (a *App) Unregister(ctx context.Context, uo UnregisterOptions) (UnregisterReport, error) {
	var rep UnregisterReport

	h, ok, err := a.storedHandle(ctx)
	if err != nil {
		return rep, err
	}
	if ok {
		rep.Handle = &h
		if h.State != platform.StateUnregistering && !h.State.CanTransition(platform.StateUnregistering) {
			return rep, fmt.Errorf("registration %s is %s", h.ID, h.State)
		}
		h.State = platform.StateUnregistering
		h.Updated = a.opts.Now()
		if err := a.putHandle(ctx, h); err != nil {
			return rep, fmt.Errorf("record unregistration: %w", err)
		}
	} else {
		// Orphan cleanup: adapters scan for the identity prefix.
		h = platform.RegistrationHandle{Identity: a.identity, Platform: a.adapter.Kind()}
	}

	if err := a.adapterFor(h).Unregister(ctx, h); err != nil {
		return rep, err
	}
	if ok {
		if err := a.deleteHandle(ctx); err != nil {
			return rep, fmt.Errorf("forget registration: %w", err)
		}
		rep.Removed = true
	}
	a.log.Info("unregistered", logx.String("identity", a.identity), logx.Bool("recorded", ok))

	if uo.RemoveLogs {
		err := a.opts.Fs.Remove(a.logPath)
		switch {
		case err == nil:
			rep.LogRemoved = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return rep, fmt.Errorf("remove log: %w", err)
		}
	}
	if ok {
		a.notify(ctx, "Unregistered all sessions", notifier.PriorityLow, "wastebasket")
	}
	return rep, nil
}
