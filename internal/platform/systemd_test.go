package platform

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userUnitDir = "/home/u/.config/systemd/user"

func newTestSystemd(fs afero.Fs, run Runner, units *fakeUnits, euid int) *Systemd {
	opts := testOptions(fs, run, euid)
	opts.Units = units.factory()
	return NewSystemd(opts)
}

func TestSystemdRender(t *testing.T) {
	t.Parallel()
	s := newTestSystemd(afero.NewMemMapFs(), &fakeRunner{}, newFakeUnits(), 501)
	descs, err := s.Render(testRegistration("09:00", false))
	require.NoError(t, err)
	require.Len(t, descs, 2)

	assert.Equal(t, "com.example.keeper.service", descs[0].Job)
	assert.Equal(t, userUnitDir+"/com.example.keeper.service", descs[0].Path)
	svc := string(descs[0].Content)
	assert.Contains(t, svc, "Type=oneshot")
	assert.Contains(t, svc, `ExecStart=/usr/local/bin/sessionkeeper run --log-file /var/log/sessionkeeper.log -- /usr/local/bin/claude -p "keep warm"`)
	assert.Contains(t, svc, "StandardOutput=append:/var/log/sessionkeeper.log")

	timer := string(descs[1].Content)
	for _, want := range []string{
		"OnCalendar=*-*-* 09:00:00",
		"OnCalendar=*-*-* 14:00:00",
		"OnCalendar=*-*-* 19:00:00",
		"OnCalendar=*-*-* 00:00:00",
		"AccuracySec=1s",
		"Persistent=true",
		"Unit=com.example.keeper.service",
		"WantedBy=timers.target",
	} {
		assert.Contains(t, timer, want)
	}
	assert.Equal(t, 4, strings.Count(timer, "OnCalendar="))
}

func TestSystemdScopeFollowsEuid(t *testing.T) {
	t.Parallel()
	s := newTestSystemd(afero.NewMemMapFs(), &fakeRunner{}, newFakeUnits(), 0)
	descs, err := s.Render(testRegistration("09:00", false))
	require.NoError(t, err)
	assert.Equal(t, "/etc/systemd/system/com.example.keeper.timer", descs[1].Path)
}

func TestExecLine(t *testing.T) {
	t.Parallel()
	got := execLine([]string{"/bin/tool", "50%", "$HOME", "two words", `say "hi"`, ""})
	assert.Equal(t, `/bin/tool 50%% $$HOME "two words" "say \"hi\"" ""`, got)
}

func TestSystemdRegisterIsIdempotent(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	units := newFakeUnits()
	s := newTestSystemd(fs, &fakeRunner{}, units, 501)
	ctx := context.Background()

	reg := testRegistration("06:15", false)
	first, err := s.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, "user", first.Handle.Scope)
	assert.Equal(t, []string{"com.example.keeper.service", "com.example.keeper.timer"}, first.Handle.Jobs)
	assert.Equal(t, []string{"reload", "enable com.example.keeper.timer", "start com.example.keeper.timer"}, units.calls)

	reg.Previous = &first.Handle
	second, err := s.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, first.Handle.Jobs, second.Handle.Jobs)
	assert.Equal(t, []string{"com.example.keeper.service", "com.example.keeper.timer"}, dirNames(fs, userUnitDir))
	assert.Equal(t, 2, units.closed)
}

func TestSystemdRegisterRollsBack(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	units := newFakeUnits()
	units.failOn = "start com.example.keeper.timer"
	s := newTestSystemd(fs, &fakeRunner{}, units, 501)

	_, err := s.Register(context.Background(), testRegistration("06:15", false))
	var ioe *RegistrationIOError
	require.ErrorAs(t, err, &ioe)
	assert.True(t, ioe.RolledBack)
	assert.Equal(t, "start", ioe.Op)
	assert.Empty(t, dirNames(fs, userUnitDir))
	assert.Contains(t, units.calls, "disable com.example.keeper.timer")
}

func TestSystemdRollbackRestoresPrevious(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	units := newFakeUnits()
	s := newTestSystemd(fs, &fakeRunner{}, units, 501)
	ctx := context.Background()

	first, err := s.Register(ctx, testRegistration("06:15", false))
	require.NoError(t, err)
	old, err := afero.ReadFile(fs, userUnitDir+"/com.example.keeper.timer")
	require.NoError(t, err)

	units.failOn = "reload"
	reg := testRegistration("08:00", false)
	reg.Previous = &first.Handle
	_, err = s.Register(ctx, reg)
	require.Error(t, err)

	got, err := afero.ReadFile(fs, userUnitDir+"/com.example.keeper.timer")
	require.NoError(t, err)
	assert.Equal(t, string(old), string(got))
}

// noBackupFs refuses to create the stage's backup directory.
type noBackupFs struct{ afero.Fs }

func (f noBackupFs) MkdirAll(p string, perm os.FileMode) error {
	if filepath.Base(p) == "backup" {
		return errTest
	}
	return f.Fs.MkdirAll(p, perm)
}

func TestSystemdBackupFailureKeepsTimerRunning(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	units := newFakeUnits()
	ctx := context.Background()

	first, err := newTestSystemd(fs, &fakeRunner{}, units, 501).Register(ctx, testRegistration("06:15", false))
	require.NoError(t, err)
	calls := len(units.calls)

	reg := testRegistration("08:00", false)
	reg.Previous = &first.Handle
	_, err = newTestSystemd(noBackupFs{fs}, &fakeRunner{}, units, 501).Register(ctx, reg)

	var ioe *RegistrationIOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "backup", ioe.Op)
	assert.Empty(t, units.calls[calls:], "the previous timer must not be touched")
	assert.True(t, units.active["com.example.keeper.timer"])
}

func TestSystemdWakeWarning(t *testing.T) {
	t.Parallel()
	run := &fakeRunner{handle: func(c Cmd) (Output, error) {
		if c.Name == "loginctl" {
			return Output{Stdout: []byte("Linger=no\n")}, nil
		}
		return Output{}, nil
	}}
	s := newTestSystemd(afero.NewMemMapFs(), run, newFakeUnits(), 501)
	res, err := s.Register(context.Background(), testRegistration("06:15", true))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 2)

	var ce *PlatformCapabilityError
	require.ErrorAs(t, res.Warnings[0], &ce)
	assert.Contains(t, ce.Error(), "rtcwake")
	require.ErrorAs(t, res.Warnings[1], &ce)
	assert.Contains(t, ce.Hint, "enable-linger")
	assert.Equal(t, []string{"06:10", "11:10", "16:10", "21:10"}, res.Handle.Wake)
}

func TestSystemdUnregister(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	units := newFakeUnits()
	s := newTestSystemd(fs, &fakeRunner{}, units, 501)
	ctx := context.Background()

	require.NoError(t, s.Unregister(ctx, RegistrationHandle{Identity: "com.example.keeper"}))
	assert.Zero(t, units.dialed, "unregistering nothing must not touch systemd")

	res, err := s.Register(ctx, testRegistration("06:15", false))
	require.NoError(t, err)
	units.nextFire = fixedNow.Add(15 * 60e9)

	st, err := s.Status(ctx, res.Handle)
	require.NoError(t, err)
	assert.True(t, st.Registered)
	assert.Contains(t, st.Detail, "active (waiting)")
	assert.Contains(t, st.Detail, "next 2026-10-19 20:15")

	require.NoError(t, s.Unregister(ctx, res.Handle))
	assert.Empty(t, dirNames(fs, userUnitDir))

	st, err = s.Status(ctx, res.Handle)
	require.NoError(t, err)
	assert.False(t, st.Registered)
}

func TestSystemdUnregisterSystemScopeNeedsRoot(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	units := newFakeUnits()
	ctx := context.Background()

	res, err := newTestSystemd(fs, &fakeRunner{}, units, 0).Register(ctx, testRegistration("06:15", false))
	require.NoError(t, err)
	assert.Equal(t, "system", res.Handle.Scope)

	err = newTestSystemd(fs, &fakeRunner{}, units, 501).Unregister(ctx, res.Handle)
	var pe *PrivilegeError
	require.ErrorAs(t, err, &pe)
}
