// Package storage persists what has to survive between CLI invocations:
//
//   - registration handles (which OS jobs a register call installed)
//   - run history (one record per fired entry)
//
// Two drivers exist: "file" (JSON snapshot + JSON Lines, no dependencies) and
// "sqlite" (build tag sqlite).
package storage
