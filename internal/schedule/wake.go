package schedule

// WakeInstant is the time the host must be awake ahead of an entry.
type WakeInstant struct {
	Entry       TimeOfDay
	At          TimeOfDay
	LeadMinutes int
}

// PlanWake returns one wake instant per entry (entry time minus its wake lead,
// wrapped across midnight), in schedule order. It returns nil when wake is
// disabled. Whether the host can honour the plan is the adapter's concern.
func PlanWake(s Schedule, enable bool) []WakeInstant {
	if !enable || len(s.Entries) == 0 {
		return nil
	}
	out := make([]WakeInstant, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, WakeInstant{
			Entry:       e.Time,
			At:          e.Time.Add(-e.WakeMinutesBefore),
			LeadMinutes: e.WakeMinutesBefore,
		})
	}
	return out
}

// WakeTimes returns just the wake instants.
func WakeTimes(plan []WakeInstant) []TimeOfDay {
	out := make([]TimeOfDay, len(plan))
	for i, w := range plan {
		out[i] = w.At
	}
	return out
}
