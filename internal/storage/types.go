package storage

import "time"

// OpenSession is a persisted in-progress presence session. There is at most
// one per user.
type OpenSession struct {
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

// DayUsage is one user's accumulated credited seconds for one weekday of the
// running week. Weekday is 0 (Monday) through 6 (Sunday).
type DayUsage struct {
	Weekday int    `json:"weekday"`
	UserID  string `json:"user_id"`
	Seconds int64  `json:"seconds"`
}
