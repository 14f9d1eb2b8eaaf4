package platform

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported = errors.New("platform: unsupported host")
	ErrNoIdentity  = errors.New("platform: registration identity is empty")
	ErrNoEntries   = errors.New("platform: schedule has no entries")
)

// PrivilegeError means the operation needs elevated rights the process does
// not hold. Nothing has been written when it is returned.
type PrivilegeError struct {
	Op   string
	Hint string
}

func (e *PrivilegeError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("%s: insufficient privileges", e.Op)
	}
	return fmt.Sprintf("%s: insufficient privileges (%s)", e.Op, e.Hint)
}

// PlatformCapabilityError reports a feature the host cannot provide. It is a
// warning: registration continues without the capability.
type PlatformCapabilityError struct {
	Platform   Kind
	Capability string
	Hint       string
}

func (e *PlatformCapabilityError) Error() string {
	msg := fmt.Sprintf("%s: %s is not supported", e.Platform, e.Capability)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

// RegistrationIOError is a failed write, validation or activation step.
// RolledBack is true when every descriptor installed in the same run was
// removed again.
type RegistrationIOError struct {
	Op         string
	Job        string
	Err        error
	RolledBack bool
}

func (e *RegistrationIOError) Error() string {
	msg := e.Op
	if e.Job != "" {
		msg += " " + e.Job
	}
	msg += ": " + e.Err.Error()
	if e.RolledBack {
		msg += " (rolled back)"
	}
	return msg
}

func (e *RegistrationIOError) Unwrap() error { return e.Err }

func ioErr(op, job string, err error) *RegistrationIOError {
	return &RegistrationIOError{Op: op, Job: job, Err: err}
}
