package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Week() WeekStore
}

// WeekStore persists the durable image of the running week: the per-weekday
// accumulator, the open-session table, and the exclusion set. Every method is
// an independent durable write; the tracker mirrors its in-memory state here
// on each mutation so a crash loses at most one in-flight credit.
type WeekStore interface {
	PutOpenSession(ctx context.Context, session OpenSession) error
	DeleteOpenSession(ctx context.Context, userID string) error
	ListOpenSessions(ctx context.Context) ([]OpenSession, error)

	// CreditDayUsage applies a batch of weekday increments as a single
	// durable write (one write per closed session, not per segment).
	CreditDayUsage(ctx context.Context, increments []DayUsage) error
	ListDayUsage(ctx context.Context) ([]DayUsage, error)

	AddExclusion(ctx context.Context, userID string) error
	RemoveExclusion(ctx context.Context, userID string) error
	ListExclusions(ctx context.Context) ([]string, error)

	// DeleteUser removes the user's bucket entries, open session, and
	// exclusion flag (admin reset of a single user).
	DeleteUser(ctx context.Context, userID string) error

	// ResetWeek clears all weekday buckets and the exclusion set. Open
	// sessions are kept: they are re-opened at the boundary by the tracker
	// and must survive a crash during rollover.
	ResetWeek(ctx context.Context) error
}
