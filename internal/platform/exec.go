package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	logx "sessionkeeper/pkg/logx"
)

// Cmd is one host command invocation.
type Cmd struct {
	Name  string
	Args  []string
	Stdin []byte
}

func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Output is what a finished command produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Combined returns trimmed stdout and stderr joined by a newline.
func (o Output) Combined() string {
	out := strings.TrimSpace(string(o.Stdout))
	if e := strings.TrimSpace(string(o.Stderr)); e != "" {
		if out != "" {
			out += "\n"
		}
		out += e
	}
	return out
}

// Runner executes host commands. A non-zero exit is returned as *ExitError
// together with the captured Output.
type Runner interface {
	Run(ctx context.Context, c Cmd) (Output, error)
}

// ExitError is a command that ran but exited non-zero.
type ExitError struct {
	Cmd    string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: exit status %d", e.Cmd, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Cmd, e.Code, e.Output)
}

// ExecRunner runs commands with os/exec and a per-command timeout.
type ExecRunner struct {
	Log     logx.Logger
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, c Cmd) (Output, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, c.Name, c.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	start := time.Now()
	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	r.Log.Debug("exec", logx.String("cmd", c.String()), logx.Duration("took", time.Since(start)), logx.Err(err))
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		out.ExitCode = ee.ExitCode()
		return out, &ExitError{Cmd: c.Name, Code: out.ExitCode, Output: out.Combined()}
	}
	out.ExitCode = -1
	return out, fmt.Errorf("%s: %w", c.Name, err)
}
