// Package runner is the body of an OS-fired job: it executes the configured
// command once, appends one plain line to the job log, records the exit
// status in the state store and sends an optional notification.
//
// The command's own output is not captured; only its exit status is kept.
package runner
