// Package schedule derives and normalizes the daily invocation schedule.
//
// A Schedule is a set of times of day at which the external command fires,
// each with a wake lead (minutes before the entry at which the host should
// be woken from sleep). Two configuration modes produce one:
//
//   - simple: Derive expands a single anchor time into four entries spaced
//     SessionLength apart (modulo 24h). 24h is not a multiple of 5h, so the
//     gap from the last entry back to the anchor is 9h rather than 5h.
//   - manual: NewManual accepts any non-empty set of unique times.
//
// PlanWake and NextFires are pure functions over a Schedule; nothing in this
// package touches the OS.
package schedule
