package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/afero"

	"sessionkeeper/internal/config"
	"sessionkeeper/internal/notifier"
	"sessionkeeper/internal/platform"
	"sessionkeeper/internal/resolve"
	"sessionkeeper/internal/schedule"
	"sessionkeeper/internal/storage"
	logx "sessionkeeper/pkg/logx"
)

// Options are the process-level inputs and host seams. Zero values use the
// real host.
type Options struct {
	ConfigPath string
	// StateDir overrides the platform-conventional state directory.
	StateDir string
	// LogFile overrides the job log path from the config.
	LogFile string
	// Executable is this program's absolute path, written into OS jobs.
	Executable string

	GOOS string
	Home string

	Fs       afero.Fs
	Platform platform.Options
	Probe    platform.Probe
	Resolver *resolve.Resolver
	// Sender replaces the ntfy HTTP sender.
	Sender notifier.Sender
	Log    logx.Logger
	Now    func() time.Time
}

type App struct {
	opts Options
	env  config.Env
	cfg  *config.Config
	sch  schedule.Schedule

	log      logx.Logger
	store    storage.Store
	notif    *notifier.Service
	adapter  platform.Adapter
	resolver *resolve.Resolver

	identity string
	logPath  string
	stateDir string
}

// New loads the configuration and wires the collaborators. It performs no
// OS scheduler interaction.
func New(opts Options) (*App, error) {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.Home == "" {
		opts.Home, _ = os.UserHomeDir()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Executable == "" {
		if exe, err := os.Executable(); err == nil {
			opts.Executable = exe
		}
	}
	if opts.ConfigPath != "" {
		if abs, err := filepath.Abs(opts.ConfigPath); err == nil {
			opts.ConfigPath = abs
		}
	}
	log := opts.Log.With(logx.String("comp", "app"))

	cm := config.NewConfigManager(opts.ConfigPath)
	cm.SetLogger(log)
	cfg, err := cm.Load()
	if err != nil {
		return nil, err
	}
	sch, err := cfg.BuildSchedule()
	if err != nil {
		return nil, err
	}

	env := config.Env{GOOS: opts.GOOS, Home: opts.Home}
	a := &App{opts: opts, env: env, cfg: cfg, sch: sch, log: log}

	a.stateDir = opts.StateDir
	if a.stateDir == "" {
		a.stateDir = config.DefaultStateDir(env)
	}
	a.logPath = opts.LogFile
	if a.logPath == "" {
		a.logPath = cfg.LogPath(env)
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.notif = notifier.New(ncfg, opts.Sender, log.With(logx.String("comp", "notifier")))

	a.resolver = opts.Resolver
	if a.resolver == nil {
		a.resolver = resolve.New(opts.Home)
	}

	popts := opts.Platform
	if popts.Fs == nil {
		popts.Fs = opts.Fs
	}
	if popts.Log.IsZero() {
		popts.Log = log.With(logx.String("comp", "platform"))
	}
	if popts.Now == nil {
		popts.Now = opts.Now
	}
	if popts.Home == "" {
		popts.Home = opts.Home
	}
	if popts.StageDir == "" {
		popts.StageDir = a.stateDir
	}
	a.opts.Platform = popts

	probe := opts.Probe
	if probe.GOOS == "" {
		probe.GOOS = opts.GOOS
	}
	if probe.LinuxMethod == "" {
		probe.LinuxMethod = cfg.PlatformSettings.Linux.Method
	}
	ad, err := probe.Detect(popts)
	if err != nil {
		return nil, err
	}
	a.adapter = ad
	a.identity = identityFor(cfg, ad.Kind())
	return a, nil
}

// openStore opens the state store lazily so commands that never touch it
// (schedule preview) leave no files behind.
func (a *App) openStore() (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	sc, enabled, err := mapStorageConfig(a.cfg, a.env)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}
	if a.opts.StateDir != "" && (a.cfg.Storage == nil || a.cfg.Storage.Path == "") {
		sc.Path = filepath.Join(a.opts.StateDir, filepath.Base(sc.Path))
	}
	sc.Fs = a.opts.Fs
	st, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a.store = st
	a.log.Debug("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	return st, nil
}

func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *App) Schedule() schedule.Schedule { return a.sch }
func (a *App) Kind() platform.Kind         { return a.adapter.Kind() }
func (a *App) Identity() string            { return a.identity }
func (a *App) LogPath() string             { return a.logPath }

// storedHandle returns the persisted handle for the current identity.
func (a *App) storedHandle(ctx context.Context) (platform.RegistrationHandle, bool, error) {
	st, err := a.openStore()
	if err != nil || st == nil {
		return platform.RegistrationHandle{}, false, err
	}
	return st.GetHandle(ctx, a.identity)
}

// otherHandles lists recorded registrations whose identity is not the
// configured one, such as those left behind by a renamed service.
func (a *App) otherHandles(ctx context.Context) ([]platform.RegistrationHandle, error) {
	st, err := a.openStore()
	if err != nil || st == nil {
		return nil, err
	}
	all, err := st.ListHandles(ctx)
	if err != nil {
		return nil, err
	}
	var out []platform.RegistrationHandle
	for _, h := range all {
		if h.Identity != a.identity {
			out = append(out, h)
		}
	}
	return out, nil
}

func (a *App) putHandle(ctx context.Context, h platform.RegistrationHandle) error {
	st, err := a.openStore()
	if err != nil || st == nil {
		return err
	}
	return st.PutHandle(ctx, h)
}

func (a *App) deleteHandle(ctx context.Context) error {
	st, err := a.openStore()
	if err != nil || st == nil {
		return err
	}
	return st.DeleteHandle(ctx, a.identity)
}

// adapterFor returns the adapter that created h, falling back to the probed one.
func (a *App) adapterFor(h platform.RegistrationHandle) platform.Adapter {
	if h.Platform == "" || h.Platform == a.adapter.Kind() {
		return a.adapter
	}
	ad, err := platform.ForKind(h.Platform, a.opts.Platform)
	if err != nil {
		a.log.Warn("stored handle names an unknown platform", logx.String("platform", string(h.Platform)), logx.Err(err))
		return a.adapter
	}
	return ad
}

func (a *App) notify(ctx context.Context, text string, priority int, tags ...string) {
	err := a.notif.Notify(ctx, notifier.Notification{Title: "SessionKeeper", Text: text, Priority: priority, Tags: tags})
	if err != nil && !errors.Is(err, notifier.ErrDisabled) {
		a.log.Debug("notification dropped", logx.Err(err))
	}
}
