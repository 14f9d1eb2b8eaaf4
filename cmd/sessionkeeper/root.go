package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sessionkeeper/internal/app"
	"sessionkeeper/internal/config"
	"sessionkeeper/internal/platform"
	logx "sessionkeeper/pkg/logx"
)

const envPrefix = "SESSIONKEEPER"

// cli holds settings shared by every subcommand. Flags win over
// SESSIONKEEPER_* environment variables.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "sessionkeeper",
		Short: "Keep a usage session warm by firing a CLI on a daily schedule",
		Long: `sessionkeeper registers a daily schedule with the host's job scheduler
(launchd, systemd, cron or Task Scheduler). Each entry runs the configured
command once; with enable_wake the host is woken shortly before each entry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "config.json", "config file (JSON or YAML)")
	pf.String("state-dir", "", "directory for registration state (default: platform state dir)")
	pf.String("log-level", "info", "console log level (debug, info, warn, error)")
	for _, name := range []string{"config", "state-dir", "log-level"} {
		_ = c.v.BindPFlag(name, pf.Lookup(name))
	}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		c.registerCmd(),
		c.statusCmd(),
		c.unregisterCmd(),
		c.scheduleCmd(),
		c.logsCmd(),
		c.runCmd(),
		c.armWakeCmd(),
	)
	return root
}

func (c *cli) log() logx.Logger {
	return logx.NewConsole(c.v.GetString("log-level"))
}

func (c *cli) appOptions() app.Options {
	exe, err := os.Executable()
	if err == nil {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			exe = real
		}
	}
	return app.Options{
		ConfigPath: c.v.GetString("config"),
		StateDir:   c.v.GetString("state-dir"),
		Executable: exe,
		Log:        c.log(),
	}
}

func (c *cli) open() (*app.App, error) {
	return c.openWith(c.appOptions())
}

func (c *cli) openWith(opts app.Options) (*app.App, error) {
	return app.New(opts)
}

// exitStatus carries a child's exit code through cobra without printing.
type exitStatus int

func (e exitStatus) Error() string { return "exit status " + strconv.Itoa(int(e)) }

// exitCode maps errors onto process exit codes:
// 2 config, 3 privilege, 4 registration I/O, 1 anything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var (
		es  exitStatus
		ce  *config.ConfigError
		pe  *platform.PrivilegeError
		ioe *platform.RegistrationIOError
	)
	switch {
	case errors.As(err, &es):
		if es < 0 || es > 255 {
			return 1
		}
		return int(es)
	case errors.As(err, &ce):
		return 2
	case errors.As(err, &pe):
		return 3
	case errors.As(err, &ioe):
		return 4
	default:
		return 1
	}
}
