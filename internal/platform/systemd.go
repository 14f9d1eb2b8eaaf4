package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/spf13/afero"

	"sessionkeeper/internal/resolve"
	logx "sessionkeeper/pkg/logx"
)

const (
	systemUnitDir = "/etc/systemd/system"
	scopeSystem   = "system"
	scopeUser     = "user"
)

// Systemd installs "<name>.service" (oneshot) and "<name>.timer" with one
// OnCalendar line per entry. It uses the system manager when running as root
// and the user manager otherwise.
type Systemd struct {
	opts  Options
	units UnitManagerFactory
}

func NewSystemd(opts Options) *Systemd {
	opts = opts.withDefaults()
	units := opts.Units
	if units == nil {
		units = dialOrSystemctl(opts)
	}
	return &Systemd{opts: opts, units: units}
}

func (s *Systemd) Kind() Kind { return KindSystemd }

func (s *Systemd) scope() string {
	if s.opts.Euid() == 0 {
		return scopeSystem
	}
	return scopeUser
}

func (s *Systemd) unitDir(scope string) string {
	if s.opts.UnitDir != "" {
		return s.opts.UnitDir
	}
	if scope == scopeSystem {
		return systemUnitDir
	}
	return filepath.Join(s.opts.Home, ".config", "systemd", "user")
}

func serviceUnit(name string) string { return name + ".service" }
func timerUnit(name string) string   { return name + ".timer" }

func (s *Systemd) Render(reg Registration) ([]Descriptor, error) {
	if err := checkRegistration(reg); err != nil {
		return nil, err
	}
	argv, err := resolve.Split(reg.Command)
	if err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}
	dir := s.unitDir(s.scope())
	name := reg.Identity

	svc := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "SessionKeeper job ("+name+")"),
		unit.NewUnitOption("Service", "Type", "oneshot"),
		unit.NewUnitOption("Service", "ExecStart", execLine(reg.SharedJobArgv(argv))),
		unit.NewUnitOption("Service", "Environment", "PATH="+launchdPath),
	}
	if reg.LogPath != "" {
		svc = append(svc,
			unit.NewUnitOption("Service", "StandardOutput", "append:"+reg.LogPath),
			unit.NewUnitOption("Service", "StandardError", "append:"+reg.LogPath),
		)
	}

	tmr := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "SessionKeeper schedule ("+reg.Schedule.Summary()+")"),
	}
	for _, e := range reg.Schedule.Entries {
		tmr = append(tmr, unit.NewUnitOption("Timer", "OnCalendar", fmt.Sprintf("*-*-* %02d:%02d:00", e.Time.Hour(), e.Time.Minute())))
	}
	tmr = append(tmr,
		unit.NewUnitOption("Timer", "AccuracySec", "1s"),
		unit.NewUnitOption("Timer", "Persistent", "true"),
		unit.NewUnitOption("Timer", "Unit", serviceUnit(name)),
		unit.NewUnitOption("Install", "WantedBy", "timers.target"),
	)

	sb, err := io.ReadAll(unit.Serialize(svc))
	if err != nil {
		return nil, err
	}
	tb, err := io.ReadAll(unit.Serialize(tmr))
	if err != nil {
		return nil, err
	}
	return []Descriptor{
		{Job: serviceUnit(name), Path: filepath.Join(dir, serviceUnit(name)), Content: sb},
		{Job: timerUnit(name), Path: filepath.Join(dir, timerUnit(name)), Content: tb},
	}, nil
}

// execLine quotes argv for ExecStart. Specifiers and variables are escaped.
func execLine(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		a = strings.ReplaceAll(a, "%", "%%")
		a = strings.ReplaceAll(a, "$", "$$")
		if a == "" || strings.ContainsAny(a, " \t\"'\\;") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

func (s *Systemd) warnings(ctx context.Context, reg Registration, scope string) []error {
	var out []error
	if len(reg.Wake) > 0 {
		out = append(out, &PlatformCapabilityError{
			Platform:   KindSystemd,
			Capability: "wake from sleep",
			Hint:       "arm the RTC manually, e.g. `sudo rtcwake -m no -t <epoch>` before each entry",
		})
	}
	if scope == scopeUser {
		res, err := s.opts.Runner.Run(ctx, Cmd{Name: "loginctl", Args: []string{"show-user", currentUser(), "--property=Linger"}})
		if err == nil && strings.TrimSpace(string(res.Stdout)) == "Linger=no" {
			out = append(out, &PlatformCapabilityError{
				Platform:   KindSystemd,
				Capability: "running while logged out",
				Hint:       "enable lingering with `loginctl enable-linger`",
			})
		}
	}
	return out
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return fmt.Sprint(os.Getuid())
}

func (s *Systemd) Register(ctx context.Context, reg Registration) (RegistrationResult, error) {
	if err := checkRegistration(reg); err != nil {
		return RegistrationResult{}, err
	}
	scope := s.scope()
	if reg.Previous != nil && reg.Previous.Platform == KindSystemd && reg.Previous.Scope == scopeSystem && scope != scopeSystem {
		return RegistrationResult{}, &PrivilegeError{Op: "systemd register", Hint: "the existing timer is system-wide; re-run with sudo"}
	}
	descs, err := s.Render(reg)
	if err != nil {
		return RegistrationResult{}, ioErr("render", reg.Identity, err)
	}

	st, err := newStage(s.opts.Fs, s.opts.StageDir)
	if err != nil {
		return RegistrationResult{}, ioErr("stage", "", err)
	}
	defer func() { _ = st.remove() }()

	staged := make(map[string]string, len(descs))
	for _, d := range descs {
		if _, err := unit.DeserializeOptions(bytes.NewReader(d.Content)); err != nil {
			return RegistrationResult{}, ioErr("validate", d.Job, err)
		}
		p, err := st.write(d.Job, d.Content, 0o644)
		if err != nil {
			return RegistrationResult{}, ioErr("stage", d.Job, err)
		}
		staged[d.Job] = p
	}

	um, err := s.units(ctx, scope == scopeUser)
	if err != nil {
		return RegistrationResult{}, ioErr("connect", scope+" manager", err)
	}
	defer func() { _ = um.Close() }()

	timer := timerUnit(reg.Identity)
	prior := s.existing(descs, reg.Previous)
	var backups []backup
	for _, p := range prior {
		b, err := afero.ReadFile(s.opts.Fs, p)
		if err != nil {
			return RegistrationResult{}, ioErr("backup", filepath.Base(p), err)
		}
		cp, err := st.write(filepath.Join("backup", filepath.Base(p)), b, 0o644)
		if err != nil {
			return RegistrationResult{}, ioErr("backup", filepath.Base(p), err)
		}
		backups = append(backups, backup{path: p, copy: cp})
	}
	// the live timer keeps running until every backup is safely staged
	if len(prior) > 0 {
		_ = um.Stop(ctx, timer)
		_ = um.Disable(ctx, timer)
	}

	var installed []string
	fail := func(op, job string, cause error) (RegistrationResult, error) {
		s.rollback(ctx, um, timer, installed, backups)
		e := ioErr(op, job, cause)
		e.RolledBack = true
		return RegistrationResult{}, e
	}
	for _, d := range descs {
		if err := copyFile(s.opts.Fs, staged[d.Job], d.Path, 0o644); err != nil {
			return fail("install", d.Job, err)
		}
		installed = append(installed, d.Path)
	}
	if err := um.Reload(ctx); err != nil {
		return fail("reload", "", err)
	}
	if err := um.Enable(ctx, timer); err != nil {
		return fail("enable", timer, err)
	}
	if err := um.Start(ctx, timer); err != nil {
		return fail("start", timer, err)
	}

	jobs := []string{serviceUnit(reg.Identity), timer}
	h := newHandle(KindSystemd, reg, jobs, installed, s.opts.Now())
	h.Scope = scope
	s.opts.Log.Info("systemd timer started", logx.String("timer", timer), logx.String("scope", scope))
	return RegistrationResult{Handle: h, Warnings: s.warnings(ctx, reg, scope)}, nil
}

// rollback removes what this run installed and reinstates the backups.
func (s *Systemd) rollback(ctx context.Context, um UnitManager, timer string, installed []string, backups []backup) {
	_ = um.Stop(ctx, timer)
	_ = um.Disable(ctx, timer)
	for _, p := range installed {
		_ = s.opts.Fs.Remove(p)
	}
	for _, b := range backups {
		if err := copyFile(s.opts.Fs, b.copy, b.path, 0o644); err != nil {
			s.opts.Log.Warn("restore previous unit failed", logx.String("path", b.path), logx.Err(err))
		}
	}
	_ = um.Reload(ctx)
	if len(backups) > 0 {
		_ = um.Enable(ctx, timer)
		_ = um.Start(ctx, timer)
	}
}

// existing lists unit files that are already installed for this identity.
func (s *Systemd) existing(descs []Descriptor, prev *RegistrationHandle) []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] && fileExists(s.opts.Fs, p) {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, d := range descs {
		add(d.Path)
	}
	if prev != nil && prev.Platform == KindSystemd {
		for _, p := range prev.Paths {
			add(p)
		}
	}
	return out
}

func (s *Systemd) handlePaths(h RegistrationHandle) (scope string, paths []string) {
	scope = h.Scope
	if scope == "" {
		scope = s.scope()
	}
	paths = append(paths, h.Paths...)
	if h.Identity != "" {
		dir := s.unitDir(scope)
		paths = append(paths, filepath.Join(dir, serviceUnit(h.Identity)), filepath.Join(dir, timerUnit(h.Identity)))
	}
	return scope, paths
}

func (s *Systemd) Unregister(ctx context.Context, h RegistrationHandle) error {
	scope, paths := s.handlePaths(h)
	var present []string
	for _, p := range paths {
		if fileExists(s.opts.Fs, p) && !contains(present, p) {
			present = append(present, p)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if scope == scopeSystem && s.opts.Euid() != 0 {
		return &PrivilegeError{Op: "systemd unregister", Hint: "the timer is system-wide; re-run with sudo"}
	}
	um, err := s.units(ctx, scope == scopeUser)
	if err != nil {
		return ioErr("connect", scope+" manager", err)
	}
	defer func() { _ = um.Close() }()

	timer := timerUnit(h.Identity)
	if err := um.Stop(ctx, timer); err != nil {
		s.opts.Log.Warn("stop timer failed", logx.String("timer", timer), logx.Err(err))
	}
	if err := um.Disable(ctx, timer); err != nil {
		s.opts.Log.Warn("disable timer failed", logx.String("timer", timer), logx.Err(err))
	}
	var errs []error
	for _, p := range present {
		if err := s.opts.Fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := um.Reload(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return ioErr("remove", h.Identity, errors.Join(errs...))
	}
	return nil
}

func (s *Systemd) Status(ctx context.Context, h RegistrationHandle) (Status, error) {
	scope, _ := s.handlePaths(h)
	dir := s.unitDir(scope)
	svcPath := filepath.Join(dir, serviceUnit(h.Identity))
	tmrPath := filepath.Join(dir, timerUnit(h.Identity))

	st := Status{Jobs: []JobStatus{
		{Job: serviceUnit(h.Identity), Installed: fileExists(s.opts.Fs, svcPath)},
		{Job: timerUnit(h.Identity), Installed: fileExists(s.opts.Fs, tmrPath)},
	}}
	st.Registered = allInstalled(st.Jobs)
	if !st.Registered {
		st.Detail = "unit files not installed"
		return st, nil
	}

	um, err := s.units(ctx, scope == scopeUser)
	if err != nil {
		st.Detail = "systemd unreachable: " + err.Error()
		return st, nil
	}
	defer func() { _ = um.Close() }()
	for i := range st.Jobs {
		us, err := um.State(ctx, st.Jobs[i].Job)
		if err != nil {
			st.Jobs[i].Detail = err.Error()
			continue
		}
		st.Jobs[i].Loaded = us.Found()
		st.Jobs[i].Detail = us.ActiveState + " (" + us.SubState + ")"
		if !us.NextElapse.IsZero() {
			st.Jobs[i].Detail += ", next " + us.NextElapse.Format("2006-01-02 15:04")
		}
	}
	st.Detail = scope + " timer " + st.Jobs[1].Detail
	return st, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
