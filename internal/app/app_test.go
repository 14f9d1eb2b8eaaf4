package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionkeeper/internal/config"
	"sessionkeeper/internal/notifier"
	"sessionkeeper/internal/platform"
	"sessionkeeper/internal/resolve"
	"sessionkeeper/internal/schedule"
	logx "sessionkeeper/pkg/logx"
)

var fixedNow = time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)

// crontabHost emulates `crontab -l` / `crontab -` for one user.
type crontabHost struct {
	mu        sync.Mutex
	content   string
	failWrite bool
	calls     []string
}

func (h *crontabHost) Run(_ context.Context, c platform.Cmd) (platform.Output, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, c.String())
	if c.Name != "crontab" || len(c.Args) == 0 {
		return platform.Output{}, nil
	}
	switch c.Args[0] {
	case "-l":
		if h.content == "" {
			return platform.Output{Stderr: []byte("no crontab for u"), ExitCode: 1}, &platform.ExitError{Cmd: "crontab -l", Code: 1}
		}
		return platform.Output{Stdout: []byte(h.content)}, nil
	case "-":
		if h.failWrite {
			return platform.Output{ExitCode: 1}, &platform.ExitError{Cmd: "crontab -", Code: 1, Output: "disk full"}
		}
		h.content = string(c.Stdin)
	}
	return platform.Output{}, nil
}

func (h *crontabHost) owned(identity string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, l := range strings.Split(h.content, "\n") {
		if strings.HasSuffix(l, "# sessionkeeper:"+identity) {
			out = append(out, l)
		}
	}
	return out
}

func (h *crontabHost) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type recordSender struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (r *recordSender) Send(_ context.Context, n notifier.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

type testEnv struct {
	fs     afero.Fs
	host   *crontabHost
	sender *recordSender
	opts   Options
}

func newTestEnv(t *testing.T, cfgBody string, withBinary bool) *testEnv {
	t.Helper()
	return newTestEnvFile(t, "config.json", cfgBody, withBinary)
}

func newTestEnvFile(t *testing.T, name, cfgBody string, withBinary bool) *testEnv {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgBody), 0o644))

	fs := afero.NewMemMapFs()
	if withBinary {
		require.NoError(t, fs.MkdirAll("/home/u/.local/bin", 0o755))
		require.NoError(t, afero.WriteFile(fs, "/home/u/.local/bin/claude", []byte("#!/bin/sh\n"), 0o755))
	}
	host := &crontabHost{content: "0 3 * * * /usr/bin/backup\n"}
	sender := &recordSender{}
	return &testEnv{
		fs:     fs,
		host:   host,
		sender: sender,
		opts: Options{
			ConfigPath: cfgPath,
			StateDir:   "/state",
			Executable: "/usr/local/bin/sessionkeeper",
			GOOS:       "linux",
			Home:       "/home/u",
			Fs:         fs,
			Platform:   platform.Options{Runner: host, Euid: func() int { return 1000 }},
			Probe:      platform.Probe{GOOS: "linux", LinuxMethod: "cron"},
			Resolver:   resolve.New("/home/u", resolve.WithFs(fs), resolve.WithPathEnv("")),
			Sender:     sender,
			Log:        logx.Nop(),
			Now:        func() time.Time { return fixedNow },
		},
	}
}

func (e *testEnv) app(t *testing.T) *App {
	t.Helper()
	a, err := New(e.opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

const simpleConfig = `{
  // anchored at 06:15
  "start_time": "06:15",
  "command": "claude -p 'hello'",
  "enable_wake": true,
  "notification_topic": "keeper-test"
}`

func TestNewRejectsBothModesBeforeHostCalls(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, `{"start_time":"06:15","schedule":[{"time":"07:00"}],"command":"claude"}`, true)
	_, err := New(env.opts)
	var ce *config.ConfigError
	require.True(t, errors.As(err, &ce), "want ConfigError, got %v", err)
	assert.ErrorIs(t, err, config.ErrBothModes)
	assert.Zero(t, env.host.callCount())
}

func TestRegisterTwiceSameJobs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, simpleConfig, true)
	ctx := context.Background()

	first, err := env.app(t).Register(ctx, RegisterOptions{})
	require.NoError(t, err)
	linesAfterFirst := env.host.owned("claude-scheduler")
	require.Len(t, linesAfterFirst, 4)

	second, err := env.app(t).Register(ctx, RegisterOptions{})
	require.NoError(t, err)

	assert.Equal(t, linesAfterFirst, env.host.owned("claude-scheduler"))
	assert.Equal(t, first.Handle.Jobs, second.Handle.Jobs)
	assert.Equal(t, first.Handle.ID, second.Handle.ID)
	assert.Equal(t, platform.StateRegistered, second.Handle.State)
	assert.Contains(t, env.host.content, "/usr/bin/backup")
	assert.Equal(t, []string{"06:15", "11:15", "16:15", "21:15"}, second.Handle.Entries)
	assert.True(t, strings.HasPrefix(second.Command, "/home/u/.local/bin/claude "), second.Command)

	var capErr *platform.PlatformCapabilityError
	found := false
	for _, w := range second.Warnings {
		if errors.As(w, &capErr) {
			found = true
		}
	}
	assert.True(t, found, "cron cannot wake the host; expected a capability warning")
	assert.NotEmpty(t, env.sender.sent)
}

func TestUnregisterThenStatusEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, simpleConfig, true)
	ctx := context.Background()
	a := env.app(t)

	_, err := a.Register(ctx, RegisterOptions{})
	require.NoError(t, err)

	st, err := a.Status(ctx, StatusOptions{})
	require.NoError(t, err)
	require.Equal(t, platform.StateRegistered, st.State)
	require.Len(t, st.NextFires, 4)
	next, ok := st.NextRun()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 19, 21, 15, 0, 0, time.UTC), next)

	rep, err := a.Unregister(ctx, UnregisterOptions{})
	require.NoError(t, err)
	assert.True(t, rep.Removed)
	assert.Empty(t, env.host.owned("claude-scheduler"))

	st, err = a.Status(ctx, StatusOptions{})
	require.NoError(t, err)
	assert.Equal(t, platform.StateUnregistered, st.State)
	assert.Empty(t, st.NextFires)
	assert.False(t, st.Orphaned)

	rep, err = a.Unregister(ctx, UnregisterOptions{})
	require.NoError(t, err)
	assert.False(t, rep.Removed)
}

func TestUnregisterCleansOrphans(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, simpleConfig, true)
	env.host.content += "15 6 * * * /x run -- claude  # sessionkeeper:claude-scheduler\n"
	a := env.app(t)

	st, err := a.Status(context.Background(), StatusOptions{})
	require.NoError(t, err)
	assert.True(t, st.Orphaned)

	_, err = a.Unregister(context.Background(), UnregisterOptions{})
	require.NoError(t, err)
	assert.Empty(t, env.host.owned("claude-scheduler"))
}

func TestRegisterUnresolvableCommand(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, simpleConfig, false)
	rep, err := env.app(t).Register(context.Background(), RegisterOptions{})
	require.NoError(t, err)

	var rerr *resolve.ResolutionError
	found := false
	for _, w := range rep.Warnings {
		if errors.As(w, &rerr) {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, "claude -p 'hello'", rep.Command)
	assert.Equal(t, platform.StateRegistered, rep.Handle.State)
	assert.Len(t, env.host.owned("claude-scheduler"), 4)
}

func TestRegisterDryRun(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, simpleConfig, true)
	rep, err := env.app(t).Register(context.Background(), RegisterOptions{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, rep.Descriptors, 4)
	assert.Zero(t, env.host.callCount())
	assert.Empty(t, env.sender.sent)
}

func TestRegisterFailureLeavesNoRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, simpleConfig, true)
	env.host.failWrite = true
	a := env.app(t)

	_, err := a.Register(context.Background(), RegisterOptions{})
	var ioe *platform.RegistrationIOError
	require.True(t, errors.As(err, &ioe), "got %v", err)

	_, ok, err := a.storedHandle(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManualSchedulePreview(t *testing.T) {
	t.Parallel()
	env := newTestEnvFile(t, "config.yaml", `schedule:
  - time: "22:00"
  - time: "07:30"
    wake_minutes_before: 10
command: claude
enable_wake: true
`, true)

	p, err := env.app(t).Preview()
	require.NoError(t, err)
	assert.Equal(t, schedule.ModeManual, p.Mode)
	require.Len(t, p.Entries, 2)
	assert.Equal(t, "07:30", p.Entries[0].Time.String())
	assert.Equal(t, []int{870, 570}, p.Gaps)
	require.Len(t, p.Wake, 2)
	assert.Equal(t, "07:20", p.Wake[0].At.String())
	assert.Equal(t, "21:55", p.Wake[1].At.String())
	assert.Equal(t, time.Date(2026, 10, 19, 22, 0, 0, 0, time.UTC), p.NextFires[0])
}

type exitExec struct{ code int }

func (e exitExec) Exec(context.Context, []string) (int, error) { return e.code, nil }

func TestRunJobRecordsHistory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, simpleConfig, true)
	a := env.app(t)
	ctx := context.Background()

	entry := schedule.MustTime("16:15")
	rec, err := a.RunJob(ctx, logx.Nop(), exitExec{code: 3}, &entry, []string{"claude", "-p", "hello"})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ExitCode)

	_, err = a.Register(ctx, RegisterOptions{})
	require.NoError(t, err)
	st, err := a.Status(ctx, StatusOptions{Runs: 5})
	require.NoError(t, err)
	require.Len(t, st.Runs, 1)
	assert.Equal(t, "16:15", st.Runs[0].Entry)
	assert.False(t, st.Runs[0].OK())
}

func TestUnregisterRemoveLogs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, simpleConfig, true)
	a := env.app(t)
	require.NoError(t, env.fs.MkdirAll(filepath.Dir(a.LogPath()), 0o755))
	require.NoError(t, afero.WriteFile(env.fs, a.LogPath(), []byte("x\n"), 0o644))

	rep, err := a.Unregister(context.Background(), UnregisterOptions{RemoveLogs: true})
	require.NoError(t, err)
	assert.True(t, rep.LogRemoved)
	exists, _ := afero.Exists(env.fs, a.LogPath())
	assert.False(t, exists)
}
