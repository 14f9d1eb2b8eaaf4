package platform

import (
	"context"
	"fmt"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/robfig/cron/v3"

	"sessionkeeper/internal/resolve"
	"sessionkeeper/internal/schedule"
	logx "sessionkeeper/pkg/logx"
)

const cronMarker = "# sessionkeeper:"

// Cron keeps one marked crontab line per entry in the invoking user's
// crontab. Lines carrying the marker for the identity are owned by this
// adapter; everything else is left untouched.
type Cron struct {
	opts Options
}

func NewCron(opts Options) *Cron { return &Cron{opts: opts.withDefaults()} }

func (c *Cron) Kind() Kind { return KindCron }

func cronJob(identity string, t schedule.TimeOfDay) string { return identity + "@" + t.Compact() }

func marker(identity string) string { return cronMarker + identity }

// cronCommand quotes argv for /bin/sh and escapes '%', which cron turns into
// a newline.
func cronCommand(argv []string) string {
	return strings.ReplaceAll(shellescape.QuoteCommand(argv), "%", `\%`)
}

func (c *Cron) Render(reg Registration) ([]Descriptor, error) {
	if err := checkRegistration(reg); err != nil {
		return nil, err
	}
	argv, err := resolve.Split(reg.Command)
	if err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}
	out := make([]Descriptor, 0, len(reg.Schedule.Entries))
	for _, e := range reg.Schedule.Entries {
		spec := schedule.CronSpec(e.Time)
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("cron spec %q: %w", spec, err)
		}
		line := fmt.Sprintf("%s %s  %s", spec, cronCommand(reg.JobArgv(e.Time, argv)), marker(reg.Identity))
		out = append(out, Descriptor{Job: cronJob(reg.Identity, e.Time), Content: []byte(line)})
	}
	return out, nil
}

// read returns the current crontab lines. A user without a crontab has none.
func (c *Cron) read(ctx context.Context) ([]string, error) {
	out, err := c.opts.Runner.Run(ctx, Cmd{Name: "crontab", Args: []string{"-l"}})
	if err != nil {
		if strings.Contains(strings.ToLower(out.Combined()), "no crontab") {
			return nil, nil
		}
		return nil, err
	}
	text := strings.TrimRight(string(out.Stdout), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func (c *Cron) write(ctx context.Context, lines []string) error {
	var body string
	if len(lines) > 0 {
		body = strings.Join(lines, "\n") + "\n"
	}
	_, err := c.opts.Runner.Run(ctx, Cmd{Name: "crontab", Args: []string{"-"}, Stdin: []byte(body)})
	return err
}

func owned(line, identity string) bool {
	return strings.HasSuffix(strings.TrimSpace(line), marker(identity))
}

func (c *Cron) Register(ctx context.Context, reg Registration) (RegistrationResult, error) {
	if err := checkRegistration(reg); err != nil {
		return RegistrationResult{}, err
	}
	descs, err := c.Render(reg)
	if err != nil {
		return RegistrationResult{}, ioErr("render", reg.Identity, err)
	}
	current, err := c.read(ctx)
	if err != nil {
		return RegistrationResult{}, ioErr("read crontab", "", err)
	}

	next := make([]string, 0, len(current)+len(descs))
	for _, line := range current {
		if !owned(line, reg.Identity) {
			next = append(next, line)
		}
	}
	jobs := make([]string, 0, len(descs))
	for _, d := range descs {
		next = append(next, string(d.Content))
		jobs = append(jobs, d.Job)
	}

	if err := c.write(ctx, next); err != nil {
		e := ioErr("write crontab", "", err)
		if rerr := c.write(ctx, current); rerr != nil {
			c.opts.Log.Error("restore crontab failed", logx.Err(rerr))
		} else {
			e.RolledBack = true
		}
		return RegistrationResult{}, e
	}

	var warnings []error
	if len(reg.Wake) > 0 {
		warnings = append(warnings, &PlatformCapabilityError{
			Platform:   KindCron,
			Capability: "wake from sleep",
			Hint:       "arm the RTC manually, e.g. `sudo rtcwake -m no -t <epoch>` before each entry",
		})
	}
	c.opts.Log.Info("crontab updated", logx.Strs("jobs", jobs))
	return RegistrationResult{Handle: newHandle(KindCron, reg, jobs, nil, c.opts.Now()), Warnings: warnings}, nil
}

func (c *Cron) Unregister(ctx context.Context, h RegistrationHandle) error {
	current, err := c.read(ctx)
	if err != nil {
		return ioErr("read crontab", "", err)
	}
	kept := make([]string, 0, len(current))
	for _, line := range current {
		if !owned(line, h.Identity) {
			kept = append(kept, line)
		}
	}
	if len(kept) == len(current) {
		return nil
	}
	if err := c.write(ctx, kept); err != nil {
		return ioErr("write crontab", "", err)
	}
	return nil
}

func (c *Cron) Status(ctx context.Context, h RegistrationHandle) (Status, error) {
	current, err := c.read(ctx)
	if err != nil {
		return Status{}, ioErr("read crontab", "", err)
	}
	var st Status
	for _, line := range current {
		if !owned(line, h.Identity) {
			continue
		}
		f := strings.Fields(line)
		job := h.Identity
		var minute, hour int
		if len(f) >= 2 {
			if _, err := fmt.Sscanf(f[0]+" "+f[1], "%d %d", &minute, &hour); err == nil {
				job = cronJob(h.Identity, schedule.TimeOfDay(hour*60+minute))
			}
		}
		st.Jobs = append(st.Jobs, JobStatus{Job: job, Installed: true, Loaded: true, Detail: strings.Join(f[:cronFields(f)], " ")})
	}
	st.Registered = len(st.Jobs) > 0
	st.Detail = fmt.Sprintf("%d crontab lines", len(st.Jobs))
	if len(h.Jobs) > 0 && len(st.Jobs) != len(h.Jobs) {
		st.Detail += fmt.Sprintf(" (expected %d)", len(h.Jobs))
	}
	return st, nil
}

func cronFields(f []string) int {
	if len(f) < 5 {
		return len(f)
	}
	return 5
}
