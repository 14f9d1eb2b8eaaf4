package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"time"

	"sessionkeeper/internal/notifier"
	"sessionkeeper/internal/schedule"
	"sessionkeeper/internal/storage"
	logx "sessionkeeper/pkg/logx"
)

var ErrNoCommand = errors.New("runner: empty command")

// Executor starts argv and waits for it. A non-zero exit is reported through
// the exit code, not the error; err is for commands that could not run.
type Executor interface {
	Exec(ctx context.Context, argv []string) (exitCode int, err error)
}

// Notifier is the subset of notifier.Service the runner uses.
type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// Job is one fired entry.
type Job struct {
	// Entry is the scheduled time; nil means infer it from Times and now.
	Entry *schedule.TimeOfDay
	Times []schedule.TimeOfDay
	Argv  []string
}

type Runner struct {
	Exec    Executor
	Store   storage.Store
	Notify  Notifier
	Log     logx.Logger
	Now     func() time.Time
	// Timeout bounds one execution when positive. Zero leaves the limit to
	// the OS scheduler (ExecutionTimeLimit, systemd).
	Timeout time.Duration
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes the job and returns its record. The returned error is only
// non-nil when the command could not be started at all; the record carries
// the same message.
func (r *Runner) Run(ctx context.Context, job Job) (rec storage.RunRecord, err error) {
	log := r.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if len(job.Argv) == 0 {
		return storage.RunRecord{}, ErrNoCommand
	}

	start := r.now()
	entry := InferEntry(job.Times, start)
	if job.Entry != nil {
		entry = *job.Entry
	}
	rec = storage.RunRecord{At: start, Entry: entry.String()}

	cctx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	code, execErr := r.exec(cctx, job.Argv)
	rec.ExitCode = code
	rec.Took = r.now().Sub(start)
	if execErr != nil {
		rec.Error = execErr.Error()
		if rec.ExitCode == 0 {
			rec.ExitCode = -1
		}
	}

	fields := []logx.Field{
		logx.String("entry", rec.Entry),
		logx.Int("exit", rec.ExitCode),
		logx.Duration("took", rec.Took.Round(time.Millisecond)),
	}
	if rec.OK() {
		log.Info("session started", fields...)
	} else {
		log.Error("session failed", append(fields, logx.Err(execErr))...)
	}

	if r.Store != nil {
		if serr := r.Store.AppendRun(ctx, rec); serr != nil {
			log.Warn("run not recorded", logx.Err(serr))
		}
	}
	if r.Notify != nil {
		_ = r.Notify.Notify(ctx, Message(rec))
	}
	return rec, execErr
}

// exec shields the caller from a panicking executor.
func (r *Runner) exec(ctx context.Context, argv []string) (code int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			code = -1
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	ex := r.Exec
	if ex == nil {
		ex = OSExecutor{}
	}
	return ex.Exec(ctx, argv)
}

// Message renders the notification for a run.
func Message(rec storage.RunRecord) notifier.Notification {
	if rec.OK() {
		return notifier.Notification{
			Title:    "SessionKeeper",
			Text:     fmt.Sprintf("Session %s started (%s)", rec.Entry, rec.Took.Round(time.Second)),
			Priority: notifier.PriorityNormal,
			Tags:     []string{"white_check_mark"},
		}
	}
	text := fmt.Sprintf("Session %s failed: exit %d", rec.Entry, rec.ExitCode)
	if rec.Error != "" {
		text += " (" + firstLine(rec.Error) + ")"
	}
	return notifier.Notification{
		Title:    "SessionKeeper",
		Text:     text,
		Priority: notifier.PriorityHigh,
		Tags:     []string{"warning"},
	}
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

// InferEntry returns the latest entry time at or before now, wrapping to the
// previous day's last entry. A catch-up run after sleep therefore maps to
// the entry it is making up for.
func InferEntry(times []schedule.TimeOfDay, now time.Time) schedule.TimeOfDay {
	if len(times) == 0 {
		return schedule.TimeOfDay(now.Hour()*60 + now.Minute())
	}
	cur := now.Hour()*60 + now.Minute()
	best, bestAgo := times[0], 24*60+1
	for _, t := range times {
		ago := cur - int(t)
		if ago < 0 {
			ago += 24 * 60
		}
		if ago < bestAgo {
			best, bestAgo = t, ago
		}
	}
	return best
}

// OSExecutor runs argv with the process's stdio detached.
type OSExecutor struct {
	Env []string
}

func (e OSExecutor) Exec(ctx context.Context, argv []string) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ctx.Err() != nil {
			return ee.ExitCode(), fmt.Errorf("%s: %w", argv[0], ctx.Err())
		}
		return ee.ExitCode(), nil
	}
	return -1, err
}
