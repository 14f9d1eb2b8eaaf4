package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"sessionkeeper/internal/resolve"
	"sessionkeeper/internal/schedule"
	logx "sessionkeeper/pkg/logx"
)

const defaultLaunchDaemonDir = "/Library/LaunchDaemons"

// Launchd installs one LaunchDaemon per entry and, when wake is enabled, a
// root daemon that arms pmset wake events.
type Launchd struct {
	opts Options
	dir  string
}

func NewLaunchd(opts Options) *Launchd {
	opts = opts.withDefaults()
	dir := opts.LaunchDaemonDir
	if dir == "" {
		dir = defaultLaunchDaemonDir
	}
	return &Launchd{opts: opts, dir: dir}
}

func (l *Launchd) Kind() Kind { return KindLaunchd }

func entryLabel(identity, hhmm string) string { return identity + ".entry." + hhmm }

func wakeLabel(identity string) string { return identity + ".wake" }

func (l *Launchd) plistPath(label string) string { return filepath.Join(l.dir, label+".plist") }

func (l *Launchd) Render(reg Registration) ([]Descriptor, error) {
	if err := checkRegistration(reg); err != nil {
		return nil, err
	}
	argv, err := resolve.Split(reg.Command)
	if err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}

	out := make([]Descriptor, 0, len(reg.Schedule.Entries)+1)
	for _, e := range reg.Schedule.Entries {
		label := entryLabel(reg.Identity, e.Time.Compact())
		b, err := renderPlist(plistJob{
			Label:    label,
			UserName: reg.User,
			Args:     reg.JobArgv(e.Time, argv),
			Times:    []schedule.TimeOfDay{e.Time},
			LogPath:  reg.LogPath,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, Descriptor{Job: label, Path: l.plistPath(label), Content: b})
	}

	if len(reg.Wake) > 0 {
		args := []string{reg.Executable, "arm-wake"}
		for _, w := range reg.Wake {
			args = append(args, "--at", w.At.String())
		}
		label := wakeLabel(reg.Identity)
		b, err := renderPlist(plistJob{
			Label:     label,
			Args:      args,
			Times:     reg.Schedule.Times(),
			RunAtLoad: true,
			LogPath:   reg.LogPath,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, Descriptor{Job: label, Path: l.plistPath(label), Content: b})
	}
	return out, nil
}

func (l *Launchd) requireRoot(op string) error {
	if l.opts.Euid() == 0 {
		return nil
	}
	return &PrivilegeError{Op: op, Hint: "LaunchDaemons are installed in " + l.dir + "; re-run with sudo"}
}

// Register stages and lints every plist, unloads the previous jobs, then
// installs and loads the new set. Any failure after the first install
// unloads what was installed and puts the previous jobs back.
func (l *Launchd) Register(ctx context.Context, reg Registration) (RegistrationResult, error) {
	if err := checkRegistration(reg); err != nil {
		return RegistrationResult{}, err
	}
	if err := l.requireRoot("launchd register"); err != nil {
		return RegistrationResult{}, err
	}
	descs, err := l.Render(reg)
	if err != nil {
		return RegistrationResult{}, ioErr("render", reg.Identity, err)
	}

	st, err := newStage(l.opts.Fs, l.opts.StageDir)
	if err != nil {
		return RegistrationResult{}, ioErr("stage", "", err)
	}
	defer func() { _ = st.remove() }()

	staged := make(map[string]string, len(descs))
	for _, d := range descs {
		if err := checkXML(d.Content); err != nil {
			return RegistrationResult{}, ioErr("validate", d.Job, err)
		}
		p, err := st.write(d.Job+".plist", d.Content, 0o644)
		if err != nil {
			return RegistrationResult{}, ioErr("stage", d.Job, err)
		}
		if _, err := l.opts.Runner.Run(ctx, Cmd{Name: "plutil", Args: []string{"-lint", p}}); err != nil {
			return RegistrationResult{}, ioErr("validate", d.Job, err)
		}
		staged[d.Job] = p
	}

	backups, err := l.detach(ctx, st, l.existing(reg.Identity, reg.Previous))
	if err != nil {
		l.restore(ctx, backups)
		return RegistrationResult{}, ioErr("unload", reg.Identity, err)
	}

	var installed []string
	fail := func(op, job string, cause error) (RegistrationResult, error) {
		l.uninstall(ctx, installed)
		l.restore(ctx, backups)
		e := ioErr(op, job, cause)
		e.RolledBack = true
		return RegistrationResult{}, e
	}
	for _, d := range descs {
		if err := copyFile(l.opts.Fs, staged[d.Job], d.Path, 0o644); err != nil {
			return fail("install", d.Job, err)
		}
		installed = append(installed, d.Path)
		if _, err := l.opts.Runner.Run(ctx, Cmd{Name: "launchctl", Args: []string{"load", "-w", d.Path}}); err != nil {
			return fail("load", d.Job, err)
		}
	}

	jobs := make([]string, len(descs))
	for i, d := range descs {
		jobs[i] = d.Job
	}
	l.opts.Log.Info("launchd jobs loaded", logx.Strs("jobs", jobs))
	return RegistrationResult{Handle: newHandle(KindLaunchd, reg, jobs, installed, l.opts.Now())}, nil
}

type backup struct {
	path string
	copy string
}

// detach unloads each path and moves it into the stage.
func (l *Launchd) detach(ctx context.Context, st *stage, paths []string) ([]backup, error) {
	var out []backup
	for _, p := range paths {
		b, err := afero.ReadFile(l.opts.Fs, p)
		if err != nil {
			return out, err
		}
		cp, err := st.write(filepath.Join("backup", filepath.Base(p)), b, 0o644)
		if err != nil {
			return out, err
		}
		_, _ = l.opts.Runner.Run(ctx, Cmd{Name: "launchctl", Args: []string{"unload", "-w", p}})
		if err := l.opts.Fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return out, err
		}
		out = append(out, backup{path: p, copy: cp})
	}
	return out, nil
}

func (l *Launchd) restore(ctx context.Context, backups []backup) {
	for _, b := range backups {
		if err := copyFile(l.opts.Fs, b.copy, b.path, 0o644); err != nil {
			l.opts.Log.Warn("restore previous job failed", logx.String("path", b.path), logx.Err(err))
			continue
		}
		_, _ = l.opts.Runner.Run(ctx, Cmd{Name: "launchctl", Args: []string{"load", "-w", b.path}})
	}
}

func (l *Launchd) uninstall(ctx context.Context, paths []string) []error {
	var errs []error
	for i := len(paths) - 1; i >= 0; i-- {
		p := paths[i]
		_, _ = l.opts.Runner.Run(ctx, Cmd{Name: "launchctl", Args: []string{"unload", "-w", p}})
		if err := l.opts.Fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errs
}

// existing returns installed plists belonging to identity: the previous
// handle's paths plus entry and wake plists in the daemon directory. The
// single-label names of older installs are matched exactly.
func (l *Launchd) existing(identity string, prev *RegistrationHandle) []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] && fileExists(l.opts.Fs, p) {
			seen[p] = true
			out = append(out, p)
		}
	}
	if prev != nil {
		for _, p := range prev.Paths {
			add(p)
		}
		for _, j := range prev.Jobs {
			add(l.plistPath(j))
		}
	}
	if identity != "" {
		if infos, err := afero.ReadDir(l.opts.Fs, l.dir); err == nil {
			for _, fi := range infos {
				name := fi.Name()
				if fi.IsDir() || !strings.HasSuffix(name, ".plist") {
					continue
				}
				if ownedPlist(name, identity) {
					add(filepath.Join(l.dir, name))
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func ownedPlist(name, identity string) bool {
	switch name {
	case identity + ".plist", identity + ".Wake.plist", identity + ".Agent.plist", wakeLabel(identity) + ".plist":
		return true
	}
	return strings.HasPrefix(name, identity+".entry.")
}

func (l *Launchd) Unregister(ctx context.Context, h RegistrationHandle) error {
	paths := l.existing(h.Identity, &h)
	if len(paths) == 0 {
		return nil
	}
	if err := l.requireRoot("launchd unregister"); err != nil {
		return err
	}
	hadWake := false
	for _, p := range paths {
		if filepath.Base(p) == wakeLabel(h.Identity)+".plist" {
			hadWake = true
		}
	}
	if errs := l.uninstall(ctx, paths); len(errs) > 0 {
		return ioErr("remove", h.Identity, errors.Join(errs...))
	}
	if hadWake {
		if _, err := l.opts.Runner.Run(ctx, Cmd{Name: "pmset", Args: []string{"schedule", "cancelall"}}); err != nil {
			l.opts.Log.Warn("cancel wake events failed", logx.Err(err))
		}
	}
	l.opts.Log.Info("launchd jobs removed", logx.Int("count", len(paths)))
	return nil
}

func (l *Launchd) Status(ctx context.Context, h RegistrationHandle) (Status, error) {
	jobs := h.Jobs
	if len(jobs) == 0 {
		for _, p := range l.existing(h.Identity, nil) {
			jobs = append(jobs, strings.TrimSuffix(filepath.Base(p), ".plist"))
		}
	}
	var st Status
	loaded := 0
	for _, j := range jobs {
		js := JobStatus{Job: j, Installed: fileExists(l.opts.Fs, l.plistPath(j))}
		if js.Installed {
			out, err := l.opts.Runner.Run(ctx, Cmd{Name: "launchctl", Args: []string{"list", j}})
			js.Loaded = err == nil
			if err != nil {
				js.Detail = "not loaded"
			} else {
				js.Detail = lastExitDetail(out.Stdout)
				loaded++
			}
		} else {
			js.Detail = "missing"
		}
		st.Jobs = append(st.Jobs, js)
	}
	st.Registered = len(jobs) > 0 && allInstalled(st.Jobs)
	st.Detail = fmt.Sprintf("%d/%d jobs loaded", loaded, len(jobs))
	return st, nil
}

// lastExitDetail pulls "LastExitStatus" out of `launchctl list <label>`.
func lastExitDetail(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		k, v, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(k) == `"LastExitStatus"` {
			return "last exit " + strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), ";"))
		}
	}
	return "loaded"
}

func allInstalled(jobs []JobStatus) bool {
	for _, j := range jobs {
		if !j.Installed {
			return false
		}
	}
	return true
}
