package store

import "time"

// Grid is the sampling interval of the upstream stations.
const Grid = 10 * time.Minute

// YearOffset is the length of one "year back" on the analog time axis.
const YearOffset = 365 * 24 * time.Hour

// RoundDownToGrid floors t to the previous multiple of grid minutes within its
// day and drops seconds and sub-seconds.
func RoundDownToGrid(t time.Time, grid time.Duration) time.Time {
	step := int(grid / time.Minute)
	if step <= 0 {
		step = 1
	}
	y, m, d := t.Date()
	minutes := t.Hour()*60 + t.Minute()
	minutes -= minutes % step
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, t.Location())
}

// Normalize converts t into loc and drops the zone offset. The result carries
// loc's wall clock labelled as UTC, so readings of every station share one axis
// and plain duration arithmetic moves along that wall clock.
func Normalize(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// Instant is the inverse of Normalize: it interprets the wall clock of a
// normalized time in loc and returns the absolute instant.
func Instant(normalized time.Time, loc *time.Location) time.Time {
	n := normalized
	return time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), n.Minute(), n.Second(), n.Nanosecond(), loc).UTC()
}

func (s *Store) Location() *time.Location {
	return s.loc
}

// Now returns the current time on the normalized axis.
func (s *Store) Now() time.Time {
	return Normalize(s.clock(), s.loc)
}

func (s *Store) Normalize(t time.Time) time.Time {
	return Normalize(t, s.loc)
}

// SetClock replaces the wall clock used by Now.
func (s *Store) SetClock(clock func() time.Time) {
	s.clock = clock
}
