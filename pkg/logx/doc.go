// Package logx is sessionkeeper's structured logging: a small value-type
// Logger over zerolog.
//
// Console output is short (time, level, caller, message, fields). The file
// sink writes either JSON or, with FileConfig.Plain, one uncoloured console
// line per event; the scheduled job log uses the plain form so it can be
// read and tailed directly.
package logx
