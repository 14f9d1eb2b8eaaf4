package schedule

// Derive expands anchor into the simple-mode schedule: SimpleEntries entries at
// anchor + i*SessionLength (mod 24h). The minute component is kept verbatim.
//
// The wraparound gap (last entry back to anchor) is 24h - 3*5h = 9h. Closing it
// would take a fifth daily entry, so it is left as is.
func Derive(anchor TimeOfDay) Schedule {
	anchor = anchor.normalize()
	s := Schedule{Mode: ModeSimple, Anchor: anchor, Entries: make([]Entry, SimpleEntries)}
	for i := range s.Entries {
		s.Entries[i] = Entry{Time: anchor.Add(i * sessionMinutes)}
	}
	return s
}
