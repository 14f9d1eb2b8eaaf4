package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSpec renders the daily standard-cron expression ("M H * * *") for t.
func CronSpec(t TimeOfDay) string {
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())
}

// NextFires returns the next occurrence of each time after now, sorted
// ascending. The result has one instant per distinct time.
func NextFires(times []TimeOfDay, now time.Time) ([]time.Time, error) {
	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		sched, err := cron.ParseStandard(CronSpec(t))
		if err != nil {
			return nil, fmt.Errorf("cron spec for %s: %w", t, err)
		}
		out = append(out, sched.Next(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// WakeWindow returns the wake instants falling in (now, now+horizon], sorted.
// It is used to arm one-shot wake timers on hosts that have no recurring wake API.
func WakeWindow(times []TimeOfDay, now time.Time, horizon time.Duration) []time.Time {
	end := now.Add(horizon)
	var out []time.Time
	for day := now; !day.After(end.Add(24 * time.Hour)); day = day.AddDate(0, 0, 1) {
		for _, t := range times {
			at := t.On(day)
			if at.After(now) && !at.After(end) {
				out = append(out, at)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return dedupTimes(out)
}

func dedupTimes(in []time.Time) []time.Time {
	out := in[:0]
	for i, t := range in {
		if i > 0 && t.Equal(in[i-1]) {
			continue
		}
		out = append(out, t)
	}
	return out
}
