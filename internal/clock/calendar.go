package clock

import "time"

// DaySegment is the portion of an interval falling on one weekday.
type DaySegment struct {
	Weekday int // 0 = Monday .. 6 = Sunday
	Seconds int64
}

// WeekdayIndex maps a time to its weekday with Monday as 0 and Sunday
// as 6.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// WeekStart returns the most recent Monday 00:00 at or before t, in t's
// location.
func WeekStart(t time.Time) time.Time {
	t = t.AddDate(0, 0, -WeekdayIndex(t))
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextWeekStart returns the next Monday 00:00 strictly after t, in t's
// location. A t exactly on a week boundary advances a full week.
func NextWeekStart(t time.Time) time.Time {
	next := WeekStart(t).AddDate(0, 0, 7)
	if !next.After(t) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// SplitByDay divides the interval [start, end) into per-weekday segments
// at local midnights. Segment seconds always sum to the floored total
// duration: intermediate segments are floored and the final segment
// absorbs any sub-second remainder. Returns nil for empty or sub-second
// intervals.
//
// Midnights are computed in start's location, so callers must normalize
// both times to the tracking timezone first.
func SplitByDay(start, end time.Time) []DaySegment {
	total := int64(end.Sub(start) / time.Second)
	if total <= 0 {
		return nil
	}

	var segments []DaySegment
	var emitted int64
	cursor := start
	for {
		next := nextMidnight(cursor)
		if !next.Before(end) {
			segments = append(segments, DaySegment{
				Weekday: WeekdayIndex(cursor),
				Seconds: total - emitted,
			})
			return segments
		}
		seconds := int64(next.Sub(cursor) / time.Second)
		if seconds > 0 {
			segments = append(segments, DaySegment{
				Weekday: WeekdayIndex(cursor),
				Seconds: seconds,
			})
			emitted += seconds
		}
		cursor = next
	}
}

func nextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
