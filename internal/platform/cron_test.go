package platform

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crontabHost simulates `crontab -l` and `crontab -` for one user.
type crontabHost struct {
	mu        sync.Mutex
	content   string
	installed bool
	failWrite func(body string) bool
}

func (h *crontabHost) runner() *fakeRunner {
	return &fakeRunner{handle: func(c Cmd) (Output, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		switch {
		case c.Name == "crontab" && c.Args[0] == "-l":
			if !h.installed {
				return Output{Stderr: []byte("no crontab for u\n"), ExitCode: 1}, &ExitError{Cmd: "crontab", Code: 1, Output: "no crontab for u"}
			}
			return Output{Stdout: []byte(h.content)}, nil
		case c.Name == "crontab" && c.Args[0] == "-":
			if h.failWrite != nil && h.failWrite(string(c.Stdin)) {
				return Output{ExitCode: 1}, &ExitError{Cmd: "crontab", Code: 1, Output: "errors in crontab file"}
			}
			h.content = string(c.Stdin)
			h.installed = true
			return Output{}, nil
		}
		return Output{}, nil
	}}
}

func (h *crontabHost) lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Split(strings.TrimRight(h.content, "\n"), "\n")
}

func TestCronRender(t *testing.T) {
	t.Parallel()
	c := NewCron(testOptions(afero.NewMemMapFs(), &fakeRunner{}, 501))
	reg := testRegistration("06:15", false)
	reg.Command = `claude -p "100% warm"`
	descs, err := c.Render(reg)
	require.NoError(t, err)
	require.Len(t, descs, 4)

	assert.Equal(t, "com.example.keeper@0615", descs[0].Job)
	line := string(descs[0].Content)
	assert.True(t, strings.HasPrefix(line, "15 6 * * * /usr/local/bin/sessionkeeper run --entry 06:15 "), line)
	assert.Contains(t, line, `'100\% warm'`)
	assert.True(t, strings.HasSuffix(line, "# sessionkeeper:com.example.keeper"))
	assert.True(t, strings.HasPrefix(string(descs[3].Content), "15 21 * * * "))
}

func TestCronRegisterPreservesForeignLines(t *testing.T) {
	t.Parallel()
	host := &crontabHost{installed: true, content: "MAILTO=me@example.com\n0 3 * * * /usr/bin/backup\n"}
	c := NewCron(testOptions(afero.NewMemMapFs(), host.runner(), 501))
	ctx := context.Background()

	reg := testRegistration("06:15", false)
	first, err := c.Register(ctx, reg)
	require.NoError(t, err)
	once := host.lines()
	require.Len(t, once, 6)
	assert.Equal(t, "MAILTO=me@example.com", once[0])
	assert.Equal(t, "0 3 * * * /usr/bin/backup", once[1])

	reg.Previous = &first.Handle
	_, err = c.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, once, host.lines(), "second register must yield the same crontab")
}

func TestCronRegisterWithoutCrontab(t *testing.T) {
	t.Parallel()
	host := &crontabHost{}
	c := NewCron(testOptions(afero.NewMemMapFs(), host.runner(), 501))
	res, err := c.Register(context.Background(), testRegistration("09:00", true))
	require.NoError(t, err)
	assert.Len(t, host.lines(), 4)
	require.Len(t, res.Warnings, 1)
	var ce *PlatformCapabilityError
	require.ErrorAs(t, res.Warnings[0], &ce)
	assert.Equal(t, KindCron, ce.Platform)
}

func TestCronRegisterRestoresOnWriteFailure(t *testing.T) {
	t.Parallel()
	host := &crontabHost{installed: true, content: "0 3 * * * /usr/bin/backup\n"}
	host.failWrite = func(body string) bool { return strings.Contains(body, cronMarker) }
	c := NewCron(testOptions(afero.NewMemMapFs(), host.runner(), 501))

	_, err := c.Register(context.Background(), testRegistration("06:15", false))
	var ioe *RegistrationIOError
	require.ErrorAs(t, err, &ioe)
	assert.True(t, ioe.RolledBack)
	assert.Equal(t, []string{"0 3 * * * /usr/bin/backup"}, host.lines())
}

func TestCronUnregisterAndStatus(t *testing.T) {
	t.Parallel()
	host := &crontabHost{installed: true, content: "0 3 * * * /usr/bin/backup\n"}
	run := host.runner()
	c := NewCron(testOptions(afero.NewMemMapFs(), run, 501))
	ctx := context.Background()

	require.NoError(t, c.Unregister(ctx, RegistrationHandle{Identity: "com.example.keeper"}))
	assert.NotContains(t, run.lines(), "crontab -", "nothing to remove means no write")

	res, err := c.Register(ctx, testRegistration("06:15", false))
	require.NoError(t, err)
	st, err := c.Status(ctx, res.Handle)
	require.NoError(t, err)
	assert.True(t, st.Registered)
	require.Len(t, st.Jobs, 4)
	assert.Equal(t, "com.example.keeper@2115", st.Jobs[3].Job)
	assert.Equal(t, "15 21 * * *", st.Jobs[3].Detail)

	require.NoError(t, c.Unregister(ctx, res.Handle))
	assert.Equal(t, []string{"0 3 * * * /usr/bin/backup"}, host.lines())

	st, err = c.Status(ctx, res.Handle)
	require.NoError(t, err)
	assert.False(t, st.Registered)
}
