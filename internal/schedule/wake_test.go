package schedule

import (
	"testing"
	"time"
)

func TestPlanWake(t *testing.T) {
	t.Parallel()
	s := Derive(MustTime("06:15")).WithWakeLead(5)
	plan := PlanWake(s, true)
	if len(plan) != len(s.Entries) {
		t.Fatalf("plan has %d instants, want %d", len(plan), len(s.Entries))
	}
	want := []string{"06:10", "11:10", "16:10", "21:10"}
	for i, w := range plan {
		if w.At.String() != want[i] {
			t.Fatalf("plan[%d] = %s, want %s", i, w.At, want[i])
		}
		if w.LeadMinutes != 5 {
			t.Fatalf("plan[%d] lead = %d", i, w.LeadMinutes)
		}
	}
	if PlanWake(s, false) != nil {
		t.Fatal("expected no wake plan when disabled")
	}
}

func TestPlanWakeWrapsMidnight(t *testing.T) {
	t.Parallel()
	s, err := NewManual([]Entry{{Time: MustTime("00:03"), WakeMinutesBefore: 10}})
	if err != nil {
		t.Fatal(err)
	}
	plan := PlanWake(s, true)
	if plan[0].At.String() != "23:53" {
		t.Fatalf("wake = %s, want 23:53", plan[0].At)
	}
}

func TestNextFires(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, loc)
	s := Derive(MustTime("06:15"))
	got, err := NextFires(s.Times(), now)
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(2024, 3, 10, 16, 15, 0, 0, loc),
		time.Date(2024, 3, 10, 21, 15, 0, 0, loc),
		time.Date(2024, 3, 11, 6, 15, 0, 0, loc),
		time.Date(2024, 3, 11, 11, 15, 0, 0, loc),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d fires", len(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("fire[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWakeWindow(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, loc)
	times := []TimeOfDay{MustTime("06:10"), MustTime("21:10")}
	endOfTomorrow := time.Date(2024, 3, 12, 0, 0, 0, 0, loc)
	got := WakeWindow(times, now, endOfTomorrow.Sub(now))
	want := []time.Time{
		time.Date(2024, 3, 10, 21, 10, 0, 0, loc),
		time.Date(2024, 3, 11, 6, 10, 0, 0, loc),
		time.Date(2024, 3, 11, 21, 10, 0, 0, loc),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("wake[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
