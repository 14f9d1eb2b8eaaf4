package platform

import (
	"os"
	"time"

	"github.com/spf13/afero"

	logx "sessionkeeper/pkg/logx"
)

// Options carries the host seams shared by every adapter. Zero fields get
// real host implementations.
type Options struct {
	Fs     afero.Fs
	Runner Runner
	Log    logx.Logger
	// Euid reports the effective user id (-1 where unknown).
	Euid func() int
	Now  func() time.Time
	// StageDir is the parent of per-run staging directories.
	StageDir string

	// LaunchDaemonDir overrides /Library/LaunchDaemons.
	LaunchDaemonDir string
	// UnitDir overrides the systemd unit directory picked from the scope.
	UnitDir string
	// Units overrides the D-Bus unit manager.
	Units UnitManagerFactory
	// Home is the invoking user's home directory.
	Home string
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	if o.Runner == nil {
		o.Runner = ExecRunner{Log: o.Log}
	}
	if o.Euid == nil {
		o.Euid = os.Geteuid
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Home == "" {
		o.Home, _ = os.UserHomeDir()
	}
	return o
}

func checkRegistration(reg Registration) error {
	if reg.Identity == "" {
		return ErrNoIdentity
	}
	if len(reg.Schedule.Entries) == 0 {
		return ErrNoEntries
	}
	return nil
}
