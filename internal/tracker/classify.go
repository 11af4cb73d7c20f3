package tracker

import (
	"sort"
	"time"
)

// Tiers are the per-day and weekly thresholds for evaluating one user's
// week. The per-day minimum depends on how many days the user was active
// at all: someone who only showed up once is held to a higher bar for
// that single day.
type Tiers struct {
	// SingleDayMinimum is the validity bar for a day when it is the
	// user's only active day.
	SingleDayMinimum time.Duration

	// MultiDayMinimum is the validity bar per day when the user was
	// active on two or more days.
	MultiDayMinimum time.Duration

	// WeeklyGoal is the total valid time required to succeed.
	WeeklyGoal time.Duration
}

// DefaultTiers returns the standard thresholds: a lone active day must
// carry four hours, days in a multi-day week must carry one hour each,
// and four valid hours are required overall.
func DefaultTiers() Tiers {
	return Tiers{
		SingleDayMinimum: 4 * time.Hour,
		MultiDayMinimum:  time.Hour,
		WeeklyGoal:       4 * time.Hour,
	}
}

// Result is the classification of one user's week.
type Result struct {
	// Succeeded is true when the user met the weekly goal with at least
	// one valid day.
	Succeeded bool

	// ActiveDays counts days with any recorded time.
	ActiveDays int

	// ValidDays counts active days that met the per-day minimum.
	ValidDays int

	// ValidSeconds sums the time of valid days only. Time on days below
	// the per-day minimum does not count.
	ValidSeconds int64

	// TotalSeconds sums all recorded time, valid or not.
	TotalSeconds int64
}

// Classify evaluates one user's seven weekday totals against the tiers.
// Pure function of its inputs.
func Classify(daySeconds [7]int64, tiers Tiers) Result {
	var r Result
	for _, s := range daySeconds {
		if s > 0 {
			r.ActiveDays++
			r.TotalSeconds += s
		}
	}
	if r.ActiveDays == 0 {
		return r
	}

	perDay := int64(tiers.MultiDayMinimum / time.Second)
	if r.ActiveDays == 1 {
		perDay = int64(tiers.SingleDayMinimum / time.Second)
	}

	for _, s := range daySeconds {
		if s >= perDay && s > 0 {
			r.ValidDays++
			r.ValidSeconds += s
		}
	}

	r.Succeeded = r.ValidDays >= 1 && r.ValidSeconds >= int64(tiers.WeeklyGoal/time.Second)
	return r
}

// Evaluation is the outcome of classifying every member for the week.
type Evaluation struct {
	Succeeded []string // user IDs, sorted
	Failed    []string
	Excluded  []string

	// Results holds the per-user classification for everyone evaluated
	// (excluded users are not classified).
	Results map[string]Result

	// Degraded is set when the member list was unavailable: users with
	// zero recorded activity could not be identified, so only users with
	// recorded time were evaluated.
	Degraded bool
}

// Evaluate classifies a week snapshot. members is the full community
// roster so that members with no recorded activity fail rather than
// silently vanish; pass membersKnown=false when the roster could not be
// fetched, in which case only users with recorded time are evaluated and
// the result is marked degraded.
func Evaluate(snap Snapshot, members []string, membersKnown bool, tiers Tiers) Evaluation {
	eval := Evaluation{
		Results:  make(map[string]Result),
		Degraded: !membersKnown,
	}

	users := make(map[string]struct{})
	for _, day := range snap.Days {
		for userID := range day {
			users[userID] = struct{}{}
		}
	}
	if membersKnown {
		for _, userID := range members {
			users[userID] = struct{}{}
		}
	}
	for userID := range snap.Excluded {
		users[userID] = struct{}{}
	}

	for userID := range users {
		if _, ok := snap.Excluded[userID]; ok {
			eval.Excluded = append(eval.Excluded, userID)
			continue
		}

		result := Classify(snap.UserDays(userID), tiers)
		eval.Results[userID] = result
		if result.Succeeded {
			eval.Succeeded = append(eval.Succeeded, userID)
		} else {
			eval.Failed = append(eval.Failed, userID)
		}
	}

	sort.Strings(eval.Succeeded)
	sort.Strings(eval.Failed)
	sort.Strings(eval.Excluded)
	return eval
}
