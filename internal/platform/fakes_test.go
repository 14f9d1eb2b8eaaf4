package platform

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"sessionkeeper/internal/schedule"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []Cmd
	handle func(c Cmd) (Output, error)
}

func (f *fakeRunner) Run(_ context.Context, c Cmd) (Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	h := f.handle
	f.mu.Unlock()
	if h != nil {
		return h(c)
	}
	return Output{}, nil
}

// lines renders recorded calls as "name arg arg".
func (f *fakeRunner) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

func (f *fakeRunner) count(prefix string) int {
	n := 0
	for _, l := range f.lines() {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

type fakeUnits struct {
	mu       sync.Mutex
	calls    []string
	active   map[string]bool
	failOn   string
	dialed   int
	closed   int
	nextFire time.Time
}

func newFakeUnits() *fakeUnits { return &fakeUnits{active: map[string]bool{}} }

func (u *fakeUnits) factory() UnitManagerFactory {
	return func(context.Context, bool) (UnitManager, error) {
		u.mu.Lock()
		u.dialed++
		u.mu.Unlock()
		return u, nil
	}
}

func (u *fakeUnits) rec(op string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, op)
	if u.failOn != "" && op == u.failOn {
		return errTest
	}
	return nil
}

func (u *fakeUnits) Reload(context.Context) error { return u.rec("reload") }
func (u *fakeUnits) Enable(_ context.Context, units ...string) error {
	return u.rec("enable " + strings.Join(units, " "))
}
func (u *fakeUnits) Disable(_ context.Context, units ...string) error {
	return u.rec("disable " + strings.Join(units, " "))
}

func (u *fakeUnits) Start(_ context.Context, unit string) error {
	if err := u.rec("start " + unit); err != nil {
		return err
	}
	u.mu.Lock()
	u.active[unit] = true
	u.mu.Unlock()
	return nil
}

func (u *fakeUnits) Stop(_ context.Context, unit string) error {
	err := u.rec("stop " + unit)
	u.mu.Lock()
	delete(u.active, unit)
	u.mu.Unlock()
	return err
}

func (u *fakeUnits) State(_ context.Context, unit string) (UnitState, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.active[unit] {
		return UnitState{Name: unit, LoadState: "loaded", ActiveState: "inactive", SubState: "dead"}, nil
	}
	return UnitState{Name: unit, LoadState: "loaded", ActiveState: "active", SubState: "waiting", NextElapse: u.nextFire}, nil
}

func (u *fakeUnits) Close() error {
	u.mu.Lock()
	u.closed++
	u.mu.Unlock()
	return nil
}

type testErr string

func (e testErr) Error() string { return string(e) }

const errTest = testErr("injected failure")

var fixedNow = time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)

func testOptions(fs afero.Fs, run Runner, euid int) Options {
	return Options{
		Fs:              fs,
		Runner:          run,
		Euid:            func() int { return euid },
		Now:             func() time.Time { return fixedNow },
		StageDir:        "/tmp/stage",
		LaunchDaemonDir: "/Library/LaunchDaemons",
		Home:            "/home/u",
	}
}

func testRegistration(anchor string, wake bool) Registration {
	s := schedule.Derive(schedule.MustTime(anchor)).WithWakeLead(5)
	return Registration{
		Identity:   "com.example.keeper",
		Schedule:   s,
		Wake:       schedule.PlanWake(s, wake),
		Command:    `/usr/local/bin/claude -p "keep warm"`,
		Executable: "/usr/local/bin/sessionkeeper",
		LogPath:    "/var/log/sessionkeeper.log",
	}
}

func dirNames(fs afero.Fs, dir string) []string {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, fi := range infos {
		out = append(out, fi.Name())
	}
	return out
}
