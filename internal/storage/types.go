package storage

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/afero"

	"sessionkeeper/internal/platform"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot for handles, JSON Lines for run history
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Fs backs the file driver. Defaults to the OS filesystem.
	Fs afero.Fs
	// KeepRuns bounds retained run history. 0 means defaultKeepRuns.
	KeepRuns int
}

const defaultKeepRuns = 500

// RunRecord is one fired entry. Only the exit status of the command is kept.
type RunRecord struct {
	At       time.Time     `json:"at"`
	Entry    string        `json:"entry"`
	ExitCode int           `json:"exit_code"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}

func (r RunRecord) OK() bool { return r.ExitCode == 0 && r.Error == "" }

// Store is the persistence API. Handles are keyed by identity.
type Store interface {
	PutHandle(ctx context.Context, h platform.RegistrationHandle) error
	GetHandle(ctx context.Context, identity string) (platform.RegistrationHandle, bool, error)
	DeleteHandle(ctx context.Context, identity string) error
	ListHandles(ctx context.Context) ([]platform.RegistrationHandle, error)

	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to limit records, newest first.
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)

	Close() error
}
