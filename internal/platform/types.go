package platform

import (
	"context"
	"fmt"
	"time"

	"sessionkeeper/internal/schedule"
)

// Kind names a scheduling subsystem.
type Kind string

const (
	KindLaunchd       Kind = "launchd"
	KindSystemd       Kind = "systemd"
	KindCron          Kind = "cron"
	KindTaskScheduler Kind = "taskscheduler"
)

// Adapter registers a schedule with one OS scheduling subsystem.
//
// Register and Unregister are idempotent. Registering replaces the jobs of
// Registration.Previous (and any job carrying the same identity prefix) so a
// second call yields the same job set as the first. Unregistering something
// that was never registered is a no-op.
type Adapter interface {
	Kind() Kind
	Render(reg Registration) ([]Descriptor, error)
	Register(ctx context.Context, reg Registration) (RegistrationResult, error)
	Unregister(ctx context.Context, h RegistrationHandle) error
	Status(ctx context.Context, h RegistrationHandle) (Status, error)
}

// Registration is everything an adapter needs to install a schedule.
type Registration struct {
	// Identity is the label, service name or task name prefix.
	Identity string
	Schedule schedule.Schedule
	// Wake is nil when wake timers are disabled.
	Wake []schedule.WakeInstant

	// Command is the (possibly resolved) command line the job runs.
	Command string

	// Executable is the absolute path of this program; jobs call back into it.
	Executable string
	ConfigPath string
	StateDir   string
	LogPath    string

	// User is the account the macOS daemons run as.
	User string
	// Distro selects the WSL distribution on Windows.
	Distro string

	Previous *RegistrationHandle
}

// JobArgv builds the argv an OS job executes for entry: this program's
// hidden run command followed by the command's own argv.
func (r Registration) JobArgv(entry schedule.TimeOfDay, command []string) []string {
	return r.jobArgv([]string{"--entry", entry.String()}, command)
}

// SharedJobArgv is JobArgv for a job that fires for every entry; run then
// matches the firing time against the schedule.
func (r Registration) SharedJobArgv(command []string) []string {
	return r.jobArgv(nil, command)
}

func (r Registration) jobArgv(extra, command []string) []string {
	argv := append([]string{r.Executable, "run"}, extra...)
	if r.ConfigPath != "" {
		argv = append(argv, "--config", r.ConfigPath)
	}
	if r.StateDir != "" {
		argv = append(argv, "--state-dir", r.StateDir)
	}
	if r.LogPath != "" {
		argv = append(argv, "--log-file", r.LogPath)
	}
	argv = append(argv, "--")
	return append(argv, command...)
}

// Descriptor is one rendered platform-native file (or crontab fragment).
type Descriptor struct {
	// Job is the OS-level job name (label, unit, task).
	Job string
	// Path is where the descriptor is installed. Empty for crontab lines.
	Path    string
	Content []byte
}

func (d Descriptor) String() string {
	if d.Path == "" {
		return fmt.Sprintf("# %s\n%s", d.Job, d.Content)
	}
	return fmt.Sprintf("# %s -> %s\n%s", d.Job, d.Path, d.Content)
}

// State is the lifecycle state of a registration handle.
type State string

const (
	StateUnregistered  State = "unregistered"
	StateRegistering   State = "registering"
	StateRegistered    State = "registered"
	StateUnregistering State = "unregistering"
)

var transitions = map[State][]State{
	StateUnregistered:  {StateRegistering},
	StateRegistering:   {StateRegistered, StateUnregistered, StateUnregistering},
	StateRegistered:    {StateRegistering, StateUnregistering},
	StateUnregistering: {StateUnregistered, StateRegistering},
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	if s == "" {
		s = StateUnregistered
	}
	for _, v := range transitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// RegistrationHandle identifies what an adapter installed. It is persisted
// between CLI invocations so status and unregister can find the jobs.
type RegistrationHandle struct {
	ID       string    `json:"id"`
	Platform Kind      `json:"platform"`
	Identity string    `json:"identity"`
	State    State     `json:"state"`
	Jobs     []string  `json:"jobs"`
	Paths    []string  `json:"paths,omitempty"`
	Entries  []string  `json:"entries"`
	Wake     []string  `json:"wake,omitempty"`
	Scope    string    `json:"scope,omitempty"`
	Command  string    `json:"command"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// EntryTimes parses Entries back into times of day, skipping bad values.
func (h RegistrationHandle) EntryTimes() []schedule.TimeOfDay {
	out := make([]schedule.TimeOfDay, 0, len(h.Entries))
	for _, e := range h.Entries {
		if t, err := schedule.ParseTimeOfDay(e); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// RegistrationResult is returned by Register. Warnings are non-fatal
// (PlatformCapabilityError and similar).
type RegistrationResult struct {
	Handle   RegistrationHandle
	Warnings []error
}

// JobStatus is the host-side state of one installed job.
type JobStatus struct {
	Job       string
	Installed bool
	Loaded    bool
	Detail    string
}

// Status is what an adapter reports about a handle.
type Status struct {
	Registered bool
	Jobs       []JobStatus
	Detail     string
}

func newHandle(kind Kind, reg Registration, jobs, paths []string, now time.Time) RegistrationHandle {
	h := RegistrationHandle{
		Platform: kind,
		Identity: reg.Identity,
		State:    StateRegistered,
		Jobs:     jobs,
		Paths:    paths,
		Command:  reg.Command,
		Created:  now,
		Updated:  now,
	}
	if reg.Previous != nil {
		h.ID = reg.Previous.ID
		if !reg.Previous.Created.IsZero() {
			h.Created = reg.Previous.Created
		}
	}
	for _, e := range reg.Schedule.Entries {
		h.Entries = append(h.Entries, e.Time.String())
	}
	for _, w := range reg.Wake {
		h.Wake = append(h.Wake, w.At.String())
	}
	return h
}
