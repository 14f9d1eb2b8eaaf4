package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to an event. Fields apply in order; later keys win.
type Field func(e *zerolog.Event)

func String(k, v string) Field               { return func(e *zerolog.Event) { e.Str(k, v) } }
func Strs(k string, v []string) Field        { return func(e *zerolog.Event) { e.Strs(k, v) } }
func Int(k string, v int) Field              { return func(e *zerolog.Event) { e.Int(k, v) } }
func Bool(k string, v bool) Field            { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Time(k string, v time.Time) Field       { return func(e *zerolog.Event) { e.Time(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Str(k, v.String()) } }

// Err is a no-op for a nil error.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}
