package platform

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"sessionkeeper/internal/schedule"
	logx "sessionkeeper/pkg/logx"
)

// wslPath is prepended inside WSL so a non-login PATH still finds the CLI.
const wslPath = "$HOME/.local/bin:$HOME/.npm-global/bin:/usr/local/bin:/usr/bin:/bin"

// TaskScheduler creates one scheduled task per entry. The command itself
// runs inside WSL through `wsl.exe bash -lc`.
type TaskScheduler struct {
	opts Options
}

func NewTaskScheduler(opts Options) *TaskScheduler { return &TaskScheduler{opts: opts.withDefaults()} }

func (t *TaskScheduler) Kind() Kind { return KindTaskScheduler }

func taskName(identity string, at schedule.TimeOfDay) string { return identity + "-" + at.Compact() }

// wslArgv wraps command for execution inside the WSL distribution.
func wslArgv(command, distro string) []string {
	argv := []string{"wsl.exe"}
	if distro != "" {
		argv = append(argv, "-d", distro)
	}
	return append(argv, "bash", "-lc", fmt.Sprintf(`export PATH="%s:$PATH"; %s`, wslPath, command))
}

func (t *TaskScheduler) Render(reg Registration) ([]Descriptor, error) {
	if err := checkRegistration(reg); err != nil {
		return nil, err
	}
	cmd := wslArgv(reg.Command, reg.Distro)
	wake := len(reg.Wake) > 0
	out := make([]Descriptor, 0, len(reg.Schedule.Entries))
	for _, e := range reg.Schedule.Entries {
		name := taskName(reg.Identity, e.Time)
		b, err := renderTaskXML(name, e.Time, wake, reg.JobArgv(e.Time, cmd))
		if err != nil {
			return nil, err
		}
		out = append(out, Descriptor{Job: name, Content: b})
	}
	return out, nil
}

func accessDenied(err error, out Output) bool {
	s := strings.ToLower(out.Combined())
	if err != nil {
		s += " " + strings.ToLower(err.Error())
	}
	return strings.Contains(s, "access is denied")
}

func notFound(err error, out Output) bool {
	s := strings.ToLower(out.Combined())
	if err != nil {
		s += " " + strings.ToLower(err.Error())
	}
	return strings.Contains(s, "cannot find") || strings.Contains(s, "does not exist")
}

// Register imports every task, overwriting same-named ones. Tasks that are
// about to be overwritten are exported into the stage first; if an import
// fails, tasks created in this run are deleted and the exported ones are
// imported again. Tasks of the previous registration that are no longer part
// of the schedule are removed last.
func (t *TaskScheduler) Register(ctx context.Context, reg Registration) (RegistrationResult, error) {
	if err := checkRegistration(reg); err != nil {
		return RegistrationResult{}, err
	}
	descs, err := t.Render(reg)
	if err != nil {
		return RegistrationResult{}, ioErr("render", reg.Identity, err)
	}

	st, err := newStage(t.opts.Fs, t.opts.StageDir)
	if err != nil {
		return RegistrationResult{}, ioErr("stage", "", err)
	}
	defer func() { _ = st.remove() }()

	staged := make(map[string]string, len(descs))
	for _, d := range descs {
		if err := checkXML(d.Content); err != nil {
			return RegistrationResult{}, ioErr("validate", d.Job, err)
		}
		enc, err := utf16File(d.Content)
		if err != nil {
			return RegistrationResult{}, ioErr("encode", d.Job, err)
		}
		p, err := st.write(d.Job+".xml", enc, 0o600)
		if err != nil {
			return RegistrationResult{}, ioErr("stage", d.Job, err)
		}
		staged[d.Job] = p
	}

	prior, err := t.existing(ctx, reg.Identity, reg.Previous)
	if err != nil {
		return RegistrationResult{}, ioErr("query", reg.Identity, err)
	}
	backups := make(map[string]string)
	for _, d := range descs {
		if !contains(prior, d.Job) {
			continue
		}
		p, err := t.export(ctx, st, d.Job)
		if err != nil {
			return RegistrationResult{}, ioErr("export", d.Job, err)
		}
		backups[d.Job] = p
	}

	var created []string
	for _, d := range descs {
		out, err := t.opts.Runner.Run(ctx, Cmd{Name: "schtasks", Args: []string{"/create", "/tn", d.Job, "/xml", staged[d.Job], "/f"}})
		if err != nil {
			rerrs := t.undo(ctx, created, backups)
			if accessDenied(err, out) {
				return RegistrationResult{}, &PrivilegeError{Op: "schtasks create", Hint: "run from an elevated prompt"}
			}
			e := ioErr("create", d.Job, err)
			e.RolledBack = len(rerrs) == 0
			return RegistrationResult{}, e
		}
		created = append(created, d.Job)
	}

	var stale []string
	for _, name := range prior {
		if !contains(created, name) {
			stale = append(stale, name)
		}
	}
	if errs := t.remove(ctx, stale); len(errs) > 0 {
		t.opts.Log.Warn("stale tasks left behind", logx.Strs("tasks", stale), logx.Err(errors.Join(errs...)))
	}

	t.opts.Log.Info("scheduled tasks created", logx.Strs("tasks", created))
	return RegistrationResult{Handle: newHandle(KindTaskScheduler, reg, created, nil, t.opts.Now())}, nil
}

// export writes the current definition of task name into the stage as a
// UTF-16 file that `schtasks /create /xml` accepts.
func (t *TaskScheduler) export(ctx context.Context, st *stage, name string) (string, error) {
	out, err := t.opts.Runner.Run(ctx, Cmd{Name: "schtasks", Args: []string{"/query", "/tn", name, "/xml"}})
	if err != nil {
		return "", err
	}
	b := out.Stdout
	if !bytes.HasPrefix(b, []byte{0xFF, 0xFE}) {
		if b, err = utf16File(b); err != nil {
			return "", err
		}
	}
	return st.write(filepath.Join("backup", name+".xml"), b, 0o600)
}

// undo deletes tasks created in this run that had no predecessor and
// re-imports the exported definition of those that did.
func (t *TaskScheduler) undo(ctx context.Context, created []string, backups map[string]string) []error {
	var (
		fresh []string
		errs  []error
	)
	for _, name := range created {
		p, ok := backups[name]
		if !ok {
			fresh = append(fresh, name)
			continue
		}
		if _, err := t.opts.Runner.Run(ctx, Cmd{Name: "schtasks", Args: []string{"/create", "/tn", name, "/xml", p, "/f"}}); err != nil {
			t.opts.Log.Warn("restore previous task failed", logx.String("task", name), logx.Err(err))
			errs = append(errs, err)
		}
	}
	return append(errs, t.remove(ctx, fresh)...)
}

func (t *TaskScheduler) remove(ctx context.Context, names []string) []error {
	var errs []error
	for _, name := range names {
		out, err := t.opts.Runner.Run(ctx, Cmd{Name: "schtasks", Args: []string{"/delete", "/tn", name, "/f"}})
		if err != nil && !notFound(err, out) {
			if accessDenied(err, out) {
				errs = append(errs, &PrivilegeError{Op: "schtasks delete " + name, Hint: "run from an elevated prompt"})
				continue
			}
			errs = append(errs, err)
		}
	}
	return errs
}

// existing returns task names owned by identity: those in prev plus any task
// named "<identity>" or "<identity>-*".
func (t *TaskScheduler) existing(ctx context.Context, identity string, prev *RegistrationHandle) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	res, err := t.opts.Runner.Run(ctx, Cmd{Name: "schtasks", Args: []string{"/query", "/fo", "csv", "/nh"}})
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(string(res.Stdout)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	installed := map[string]bool{}
	for _, rec := range recs {
		if len(rec) == 0 {
			continue
		}
		name := strings.TrimPrefix(strings.TrimSpace(rec[0]), `\`)
		installed[name] = true
		if identity != "" && (name == identity || strings.HasPrefix(name, identity+"-")) {
			add(name)
		}
	}
	if prev != nil {
		for _, j := range prev.Jobs {
			if installed[j] {
				add(j)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *TaskScheduler) Unregister(ctx context.Context, h RegistrationHandle) error {
	names, err := t.existing(ctx, h.Identity, &h)
	if err != nil {
		return ioErr("query", h.Identity, err)
	}
	if len(names) == 0 {
		return nil
	}
	if errs := t.remove(ctx, names); len(errs) > 0 {
		var pe *PrivilegeError
		for _, e := range errs {
			if errors.As(e, &pe) {
				return pe
			}
		}
		return ioErr("delete", h.Identity, errors.Join(errs...))
	}
	return nil
}

func (t *TaskScheduler) Status(ctx context.Context, h RegistrationHandle) (Status, error) {
	names := h.Jobs
	if len(names) == 0 {
		var err error
		if names, err = t.existing(ctx, h.Identity, nil); err != nil {
			return Status{}, ioErr("query", h.Identity, err)
		}
	}
	var st Status
	ready := 0
	for _, name := range names {
		js := JobStatus{Job: name}
		out, err := t.opts.Runner.Run(ctx, Cmd{Name: "schtasks", Args: []string{"/query", "/tn", name, "/v", "/fo", "list"}})
		if err != nil {
			js.Detail = "missing"
			st.Jobs = append(st.Jobs, js)
			continue
		}
		fields := parseTaskList(out.Stdout)
		js.Installed = true
		js.Loaded = !strings.EqualFold(fields["Status"], "Disabled")
		js.Detail = fields["Status"]
		if next := fields["Next Run Time"]; next != "" {
			js.Detail += ", next " + next
		}
		if js.Loaded {
			ready++
		}
		st.Jobs = append(st.Jobs, js)
	}
	st.Registered = len(names) > 0 && allInstalled(st.Jobs)
	st.Detail = fmt.Sprintf("%d/%d tasks enabled", ready, len(names))
	return st, nil
}

// parseTaskList reads `schtasks /query /v /fo list` key/value output. The
// first occurrence of a key wins.
func parseTaskList(b []byte) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if _, dup := out[k]; dup || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
