package notify

import "time"

// Notifier delivers human-readable lines to the community channel. Delivery
// is best effort: implementations log failures and never block tracking.
type Notifier interface {
	// SessionClosed announces a credited session with its start and end
	// clock times.
	SessionClosed(userID string, start, end time.Time, credited time.Duration)

	// RecoveryCredit announces time credited for a session that was closed
	// by the startup reconciler rather than a real departure.
	RecoveryCredit(userID string, start, end time.Time, credited time.Duration)

	// WeeklyReport delivers the end-of-week evaluation.
	WeeklyReport(report Report)

	// Reminder delivers a user-requested one-shot reminder.
	Reminder(userID string)
}

// Report is the rendered weekly evaluation handed to the notifier.
type Report struct {
	WeekStart time.Time `json:"week_start"`
	Days      []DayLine `json:"days"` // seven entries, Monday first
	Succeeded []string  `json:"succeeded"`
	Failed    []string  `json:"failed"`
	Excluded  []string  `json:"excluded"`

	// Degraded is set when the member list was unavailable and the
	// zero-activity failure rule had to be skipped.
	Degraded bool `json:"degraded"`
}

// DayLine is one weekday's per-user listing in the report.
type DayLine struct {
	Weekday int        `json:"weekday"`
	Users   []UserTime `json:"users"`
}

// UserTime is one user's recorded time for a day.
type UserTime struct {
	Name    string `json:"name"`
	Seconds int64  `json:"seconds"`
}

// Nop is a Notifier that discards everything. Used in tests and when the
// webhook is disabled.
type Nop struct{}

func (Nop) SessionClosed(string, time.Time, time.Time, time.Duration)  {}
func (Nop) RecoveryCredit(string, time.Time, time.Time, time.Duration) {}
func (Nop) WeeklyReport(Report)                                        {}
func (Nop) Reminder(string)                                            {}
