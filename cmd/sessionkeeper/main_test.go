package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionkeeper/internal/config"
	"sessionkeeper/internal/platform"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("x"), 1},
		{&config.ConfigError{Err: config.ErrNoMode}, 2},
		{&platform.PrivilegeError{Op: "register"}, 3},
		{fmt.Errorf("wrapped: %w", &platform.RegistrationIOError{Op: "install", Err: errors.New("x")}), 4},
		{exitStatus(7), 7},
		{exitStatus(-1), 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitCode(tc.err), "%v", tc.err)
	}
}

func TestScheduleCommand(t *testing.T) {
	cfg := writeConfig(t, `{"start_time":"09:00","command":"claude","enable_wake":true}`)
	out, err := execute(t, "schedule", "--config", cfg, "--state-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "simple (anchor 09:00")
	for _, want := range []string{"09:00", "14:00", "19:00", "00:00", "wake 23:55 (5 min before)", "5h00m, 5h00m, 5h00m, 9h00m"} {
		assert.Contains(t, out, want)
	}
}

func TestConfigErrorExitCode(t *testing.T) {
	cfg := writeConfig(t, `{"start_time":"06:15","schedule":[{"time":"07:00"}],"command":"claude"}`)
	_, err := execute(t, "register", "--config", cfg, "--state-dir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestRunCommandPropagatesExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	cfg := writeConfig(t, `{"start_time":"06:15","command":"claude"}`)
	logFile := filepath.Join(dir, "job.log")

	_, err := execute(t, "run", "--entry", "11:15", "--config", cfg, "--state-dir", dir, "--log-file", logFile, "--", "sh", "-c", "exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))

	_, err = execute(t, "run", "--entry", "16:15", "--config", cfg, "--state-dir", dir, "--log-file", logFile, "--", "true")
	require.NoError(t, err)

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "entry=11:15")
	assert.Contains(t, lines[0], "exit=3")
	assert.Contains(t, lines[1], "entry=16:15")

	out, err := execute(t, "status", "--config", cfg, "--state-dir", dir, "--runs", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "State:     unregistered")
	assert.Contains(t, out, "16:15")
}

func TestRunCommandWithoutConfigStillRuns(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses true")
	}
	dir := t.TempDir()
	logFile := filepath.Join(dir, "job.log")
	_, err := execute(t, "run", "--config", filepath.Join(dir, "missing.json"), "--log-file", logFile, "--", "true")
	require.NoError(t, err)

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "config unavailable")
	assert.Contains(t, string(b), "exit=0")
}
