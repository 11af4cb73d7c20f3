package tracker

import (
	"sort"
	"time"

	"github.com/goodtune/weekwatch/internal/clock"
)

// Snapshot is an immutable copy of one week's accumulated state.
type Snapshot struct {
	Days     [7]map[string]int64 // weekday -> user -> credited seconds
	Excluded map[string]struct{}
}

// UserDays returns one user's seven weekday totals.
func (s Snapshot) UserDays(userID string) [7]int64 {
	var days [7]int64
	for i, day := range s.Days {
		days[i] = day[userID]
	}
	return days
}

// snapshotLocked copies the current buckets and exclusion set. Callers
// must hold t.mu.
func (t *Tracker) snapshotLocked() Snapshot {
	var snap Snapshot
	for i, day := range t.buckets {
		snap.Days[i] = make(map[string]int64, len(day))
		for userID, seconds := range day {
			snap.Days[i][userID] = seconds
		}
	}
	snap.Excluded = make(map[string]struct{}, len(t.excluded))
	for userID := range t.excluded {
		snap.Excluded[userID] = struct{}{}
	}
	return snap
}

// Snapshot returns a copy of the running week without modifying it.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// UserProgress is one user's live standing in the running week.
type UserProgress struct {
	UserID         string   `json:"user_id"`
	DaySeconds     [7]int64 `json:"day_seconds"`
	TotalSeconds   int64    `json:"total_seconds"`
	InSession      bool     `json:"in_session"`
	SessionSeconds int64    `json:"session_seconds,omitempty"`
	Excluded       bool     `json:"excluded,omitempty"`
}

// LiveProgress reports every tracked user's credited time plus the
// elapsed time of any still-open session, apportioned to weekdays as a
// close at now would credit it. The open portion is informational: it is
// not yet credited and may still be discarded if the session ends early.
func (t *Tracker) LiveProgress(now time.Time) []UserProgress {
	now = now.In(t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

	users := make(map[string]struct{})
	for i := range t.buckets {
		for userID := range t.buckets[i] {
			users[userID] = struct{}{}
		}
	}
	for userID := range t.open {
		users[userID] = struct{}{}
	}
	for userID := range t.excluded {
		users[userID] = struct{}{}
	}

	out := make([]UserProgress, 0, len(users))
	for userID := range users {
		p := UserProgress{UserID: userID}
		for i := range t.buckets {
			p.DaySeconds[i] = t.buckets[i][userID]
			p.TotalSeconds += t.buckets[i][userID]
		}
		if start, ok := t.open[userID]; ok {
			p.InSession = true
			for _, seg := range clock.SplitByDay(start, now) {
				p.DaySeconds[seg.Weekday] += seg.Seconds
				p.TotalSeconds += seg.Seconds
				p.SessionSeconds += seg.Seconds
			}
		}
		if _, ok := t.excluded[userID]; ok {
			p.Excluded = true
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Projection classifies the running week as if it ended now, counting
// open sessions up to now. Useful mid-week to see who is on track.
func (t *Tracker) Projection(now time.Time, tiers Tiers) Evaluation {
	now = now.In(t.loc)

	t.mu.Lock()
	snap := t.snapshotLocked()
	for userID, start := range t.open {
		for _, seg := range clock.SplitByDay(start, now) {
			snap.Days[seg.Weekday][userID] += seg.Seconds
		}
	}
	t.mu.Unlock()

	return Evaluate(snap, nil, false, tiers)
}
