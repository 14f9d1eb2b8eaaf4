package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// SessionLength is how long the downstream service stays warm after one invocation.
	SessionLength = 5 * time.Hour

	// SimpleEntries is the number of entries Derive produces.
	SimpleEntries = 4

	// DefaultWakeMinutes is the wake lead used when the config omits one.
	DefaultWakeMinutes = 5

	minutesPerDay  = 24 * 60
	sessionMinutes = int(SessionLength / time.Minute)
)

var (
	ErrEmptySchedule = errors.New("schedule must contain at least one entry")
	ErrDuplicateTime = errors.New("duplicate schedule time")
	ErrWakeLead      = errors.New("invalid wake lead")
)

// TimeOfDay is a wall-clock minute within a day (0..1439).
type TimeOfDay int

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseTimeOfDay parses "HH:MM" (24h). A single-digit hour is accepted.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	m := reHHMM.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM (24h)", raw)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", raw)
	}
	return TimeOfDay(h*60 + mm), nil
}

// MustTime is ParseTimeOfDay for literals; it panics on bad input.
func MustTime(raw string) TimeOfDay {
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) normalize() TimeOfDay {
	v := int(t) % minutesPerDay
	if v < 0 {
		v += minutesPerDay
	}
	return TimeOfDay(v)
}

func (t TimeOfDay) Hour() int   { return int(t.normalize()) / 60 }
func (t TimeOfDay) Minute() int { return int(t.normalize()) % 60 }

// Add shifts t by n minutes, wrapping across midnight in either direction.
func (t TimeOfDay) Add(n int) TimeOfDay { return TimeOfDay(int(t) + n).normalize() }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Compact renders t as "HHMM" for use inside job identifiers.
func (t TimeOfDay) Compact() string { return fmt.Sprintf("%02d%02d", t.Hour(), t.Minute()) }

// On returns the instant at t on the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, t.Hour(), t.Minute(), 0, 0, day.Location())
}

// Entry is one daily recurring invocation.
type Entry struct {
	Time              TimeOfDay `json:"time"`
	WakeMinutesBefore int       `json:"wake_minutes_before"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s (wake %d min before)", e.Time, e.WakeMinutesBefore)
}

type Mode string

const (
	ModeSimple Mode = "simple"
	ModeManual Mode = "manual"
)

// Schedule is the normalized "when to run" model handed to platform adapters.
type Schedule struct {
	Mode    Mode
	Anchor  TimeOfDay // simple mode only
	Entries []Entry
}

// NewManual builds a manual-mode schedule sorted ascending by time of day.
func NewManual(entries []Entry) (Schedule, error) {
	s := Schedule{Mode: ModeManual, Entries: append([]Entry(nil), entries...)}
	for i := range s.Entries {
		s.Entries[i].Time = s.Entries[i].Time.normalize()
	}
	sort.SliceStable(s.Entries, func(i, j int) bool { return s.Entries[i].Time < s.Entries[j].Time })
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// Validate checks the entry invariants shared by both modes.
func (s Schedule) Validate() error {
	if len(s.Entries) == 0 {
		return ErrEmptySchedule
	}
	seen := make(map[TimeOfDay]bool, len(s.Entries))
	for _, e := range s.Entries {
		if seen[e.Time] {
			return fmt.Errorf("%w: %s", ErrDuplicateTime, e.Time)
		}
		seen[e.Time] = true
		if e.WakeMinutesBefore < 0 || e.WakeMinutesBefore >= sessionMinutes {
			return fmt.Errorf("%w: %s wakes %d minutes before (must be 0..%d)", ErrWakeLead, e.Time, e.WakeMinutesBefore, sessionMinutes-1)
		}
	}
	if s.Mode == ModeSimple && len(s.Entries) != SimpleEntries {
		return fmt.Errorf("simple schedule has %d entries, want %d", len(s.Entries), SimpleEntries)
	}
	return nil
}

// WithWakeLead returns a copy with every entry's wake lead set to minutes.
func (s Schedule) WithWakeLead(minutes int) Schedule {
	cp := s
	cp.Entries = append([]Entry(nil), s.Entries...)
	for i := range cp.Entries {
		cp.Entries[i].WakeMinutesBefore = minutes
	}
	return cp
}

// Times returns the entry times in schedule order.
func (s Schedule) Times() []TimeOfDay {
	out := make([]TimeOfDay, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Time
	}
	return out
}

// Gaps returns the minutes from each entry to the next, wrapping the last
// entry back to the first. A single-entry schedule has one 24h gap.
func (s Schedule) Gaps() []int {
	n := len(s.Entries)
	out := make([]int, n)
	for i := range s.Entries {
		next := s.Entries[(i+1)%n].Time
		d := int(next) - int(s.Entries[i].Time)
		if d <= 0 {
			d += minutesPerDay
		}
		out[i] = d
	}
	return out
}

// Summary renders "06:15, 11:15, ..." for logs and CLI output.
func (s Schedule) Summary() string {
	parts := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		parts[i] = e.Time.String()
	}
	return strings.Join(parts, ", ")
}
