package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goodtune/weekwatch/internal/clock"
	"github.com/goodtune/weekwatch/internal/metrics"
	"github.com/goodtune/weekwatch/internal/notify"
	"github.com/goodtune/weekwatch/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultMinSessionDuration is the qualifying threshold below which a
// session credits nothing.
const DefaultMinSessionDuration = 20 * time.Minute

// DefaultOptOutCutoffDays is how many weekdays from Monday the opt-out
// window stays open (3 = Monday through Wednesday).
const DefaultOptOutCutoffDays = 3

var (
	// ErrInvalidWeekday is returned for weekday indexes outside 0..6.
	ErrInvalidWeekday = errors.New("weekday must be between 0 (Monday) and 6 (Sunday)")

	// ErrNonPositiveCredit is returned for manual credits of zero or
	// negative duration.
	ErrNonPositiveCredit = errors.New("credit must be positive")

	// ErrOptOutWindowClosed is returned when a user opts out after the
	// weekly window has closed.
	ErrOptOutWindowClosed = errors.New("opt-out is only allowed during the first days of the week")
)

// Config holds tracker configuration
type Config struct {
	MinSessionDuration time.Duration
	OptOutCutoffDays   int
	Location           *time.Location
}

// Tracker owns the running week: the open-session ledger, the per-weekday
// accumulator, and the exclusion set. All three are authoritative in memory
// and mirrored to durable storage on every mutation; a failed write is
// logged and retried implicitly by the next mutation, never fatal.
//
// A single mutex guards read-mutate-persist as one atomic unit.
type Tracker struct {
	store    storage.WeekStore
	clock    clock.Clock
	notifier notify.Notifier
	logger   zerolog.Logger

	minSession   time.Duration
	optOutCutoff int
	loc          *time.Location

	mu       sync.Mutex
	open     map[string]time.Time // user -> session start
	buckets  [7]map[string]int64  // weekday -> user -> credited seconds
	excluded map[string]struct{}
}

// New creates a tracker with empty state. Call Load to restore persisted
// state before handling events.
func New(store storage.WeekStore, cfg Config, clk clock.Clock, notifier notify.Notifier, logger zerolog.Logger) *Tracker {
	if cfg.MinSessionDuration == 0 {
		cfg.MinSessionDuration = DefaultMinSessionDuration
	}
	if cfg.OptOutCutoffDays == 0 {
		cfg.OptOutCutoffDays = DefaultOptOutCutoffDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	t := &Tracker{
		store:        store,
		clock:        clk,
		notifier:     notifier,
		logger:       logger.With().Str("component", "tracker").Logger(),
		minSession:   cfg.MinSessionDuration,
		optOutCutoff: cfg.OptOutCutoffDays,
		loc:          cfg.Location,
		open:         make(map[string]time.Time),
		excluded:     make(map[string]struct{}),
	}
	for i := range t.buckets {
		t.buckets[i] = make(map[string]int64)
	}
	return t
}

// Load restores persisted state. Missing data is not an error: the first
// run starts an empty week.
func (t *Tracker) Load(ctx context.Context) error {
	sessions, err := t.store.ListOpenSessions(ctx)
	if err != nil {
		return err
	}
	usage, err := t.store.ListDayUsage(ctx)
	if err != nil {
		return err
	}
	excluded, err := t.store.ListExclusions(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range sessions {
		t.open[s.UserID] = s.StartedAt.In(t.loc)
	}
	for _, u := range usage {
		if u.Weekday < 0 || u.Weekday > 6 {
			t.logger.Warn().Int("weekday", u.Weekday).Str("user_id", u.UserID).Msg("Skipping persisted usage with bad weekday")
			continue
		}
		t.buckets[u.Weekday][u.UserID] += u.Seconds
	}
	for _, userID := range excluded {
		t.excluded[userID] = struct{}{}
	}

	metrics.OpenSessions.Set(float64(len(t.open)))

	t.logger.Info().
		Int("open_sessions", len(t.open)).
		Int("usage_entries", len(usage)).
		Int("excluded", len(excluded)).
		Msg("Restored persisted week state")
	return nil
}

// HandleEnter opens a session for the user. A second enter while a session
// is already open is an anomaly: it is logged and ignored so the original
// start time is never lost.
func (t *Tracker) HandleEnter(userID string, at time.Time) {
	at = at.In(t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.open[userID]; ok {
		t.logger.Warn().
			Str("user_id", userID).
			Time("open_since", existing).
			Msg("Duplicate enter event ignored")
		metrics.AnomalousEvents.WithLabelValues("duplicate_enter").Inc()
		return
	}

	t.open[userID] = at
	t.persistPutSession(userID, at)
	metrics.SessionsOpened.Inc()
	metrics.OpenSessions.Set(float64(len(t.open)))

	t.logger.Info().Str("user_id", userID).Time("at", at).Msg("Session opened")
}

// HandleLeave closes the user's session at the given instant and credits
// the accumulator if the session met the qualifying threshold. Returns
// the credited duration and whether a session was actually closed; a
// leave without a matching session is logged and ignored.
func (t *Tracker) HandleLeave(userID string, at time.Time) (time.Duration, bool) {
	at = at.In(t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.open[userID]; !ok {
		t.logger.Debug().Str("user_id", userID).Msg("Leave event with no open session ignored")
		metrics.AnomalousEvents.WithLabelValues("unmatched_leave").Inc()
		return 0, false
	}

	credited := t.closeLocked(userID, at, false)
	metrics.OpenSessions.Set(float64(len(t.open)))
	return credited, true
}

// closeLocked removes the user's open session and runs the close-to-credit
// pipeline against the interval [start, end). The removal is persisted
// before any crediting so a crash in between loses at most one in-flight
// credit instead of double-crediting after restart. Returns the credited
// duration (zero when below the threshold).
// recovered marks sessions closed by the startup reconciler rather than a
// real departure, which changes the notification wording.
//
// Callers must hold t.mu and have verified the session exists.
func (t *Tracker) closeLocked(userID string, end time.Time, recovered bool) time.Duration {
	start := t.open[userID]
	delete(t.open, userID)
	t.persistDeleteSession(userID)

	duration := end.Sub(start)
	if duration < t.minSession {
		metrics.SessionsClosed.WithLabelValues("discarded").Inc()
		t.logger.Info().
			Str("user_id", userID).
			Dur("duration", duration).
			Dur("min_duration", t.minSession).
			Msg("Session below qualifying threshold, not credited")
		return 0
	}

	segments := clock.SplitByDay(start, end)
	t.creditLocked(userID, segments)

	var credited int64
	for _, seg := range segments {
		credited += seg.Seconds
	}

	metrics.SessionsClosed.WithLabelValues("credited").Inc()
	t.logger.Info().
		Str("user_id", userID).
		Time("start", start).
		Time("end", end).
		Int64("credited_seconds", credited).
		Bool("recovered", recovered).
		Msg("Session closed and credited")

	if recovered {
		t.notifier.RecoveryCredit(userID, start, end, time.Duration(credited)*time.Second)
	} else {
		t.notifier.SessionClosed(userID, start, end, time.Duration(credited)*time.Second)
	}
	return time.Duration(credited) * time.Second
}

// creditLocked applies split segments to the weekday buckets and persists
// them as one batched write. Callers must hold t.mu.
func (t *Tracker) creditLocked(userID string, segments []clock.DaySegment) {
	increments := make([]storage.DayUsage, 0, len(segments))
	for _, seg := range segments {
		t.buckets[seg.Weekday][userID] += seg.Seconds
		metrics.CreditedSeconds.Add(float64(seg.Seconds))
		increments = append(increments, storage.DayUsage{
			Weekday: seg.Weekday,
			UserID:  userID,
			Seconds: seg.Seconds,
		})
	}
	if len(increments) == 0 {
		return
	}
	if err := t.store.CreditDayUsage(context.Background(), increments); err != nil {
		metrics.StoreWriteErrors.Inc()
		t.logger.Error().Err(err).
			Str("user_id", userID).
			Msg("Failed to persist day usage, keeping in-memory credit")
	}
}

// ManualCredit adds an administrative time adjustment to one weekday
// bucket.
func (t *Tracker) ManualCredit(userID string, weekday int, seconds int64) error {
	if weekday < 0 || weekday > 6 {
		return ErrInvalidWeekday
	}
	if seconds <= 0 {
		return ErrNonPositiveCredit
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.creditLocked(userID, []clock.DaySegment{{Weekday: weekday, Seconds: seconds}})
	t.logger.Info().
		Str("user_id", userID).
		Int("weekday", weekday).
		Int64("seconds", seconds).
		Msg("Manual credit applied")
	return nil
}

// OptOut removes the user from this week's evaluation. Only allowed during
// the first weekdays of the week (Monday through Wednesday by default).
func (t *Tracker) OptOut(userID string, at time.Time) error {
	at = at.In(t.loc)
	if clock.WeekdayIndex(at) >= t.optOutCutoff {
		return ErrOptOutWindowClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.excluded[userID] = struct{}{}
	if err := t.store.AddExclusion(context.Background(), userID); err != nil {
		metrics.StoreWriteErrors.Inc()
		t.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist exclusion")
	}
	t.logger.Info().Str("user_id", userID).Msg("User opted out of this week")
	return nil
}

// OptIn puts the user back into this week's evaluation. Allowed any day:
// rejoining can only make the user accountable for more.
func (t *Tracker) OptIn(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.excluded, userID)
	if err := t.store.RemoveExclusion(context.Background(), userID); err != nil {
		metrics.StoreWriteErrors.Inc()
		t.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist exclusion removal")
	}
	t.logger.Info().Str("user_id", userID).Msg("User opted back in")
}

// ResetAll clears the whole week: buckets, exclusions, and open sessions
// are discarded without credit.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = make(map[string]time.Time)
	for i := range t.buckets {
		t.buckets[i] = make(map[string]int64)
	}
	t.excluded = make(map[string]struct{})

	ctx := context.Background()
	if err := t.store.ResetWeek(ctx); err != nil {
		metrics.StoreWriteErrors.Inc()
		t.logger.Error().Err(err).Msg("Failed to persist week reset")
	}
	sessions, err := t.store.ListOpenSessions(ctx)
	if err == nil {
		for _, s := range sessions {
			if err := t.store.DeleteOpenSession(ctx, s.UserID); err != nil && err != storage.ErrNotFound {
				t.logger.Error().Err(err).Str("user_id", s.UserID).Msg("Failed to delete persisted session")
			}
		}
	}

	metrics.OpenSessions.Set(0)
	t.logger.Warn().Msg("Week state reset by administrator")
}

// ResetUser clears one user: bucket entries, open session (uncredited),
// and exclusion flag.
func (t *Tracker) ResetUser(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.open, userID)
	for i := range t.buckets {
		delete(t.buckets[i], userID)
	}
	delete(t.excluded, userID)

	if err := t.store.DeleteUser(context.Background(), userID); err != nil {
		metrics.StoreWriteErrors.Inc()
		t.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist user reset")
	}

	metrics.OpenSessions.Set(float64(len(t.open)))
	t.logger.Warn().Str("user_id", userID).Msg("User state reset by administrator")
}

// Rollover is the weekly boundary flush. Every open session is closed at
// the boundary through the normal close-to-credit pipeline, the finished
// week is snapshotted, buckets and exclusions are reset, and sessions are
// re-opened at the boundary for users still present so usage spanning the
// boundary is split, not lost.
//
// presentKnown is false when the presence query failed; in that case every
// flushed session is re-opened, since its user was present as far as we
// know.
func (t *Tracker) Rollover(boundary time.Time, present []string, presentKnown bool) Snapshot {
	boundary = boundary.In(t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

	wasOpen := make([]string, 0, len(t.open))
	for userID := range t.open {
		wasOpen = append(wasOpen, userID)
	}
	for _, userID := range wasOpen {
		t.closeLocked(userID, boundary, false)
	}

	snapshot := t.snapshotLocked()

	for i := range t.buckets {
		t.buckets[i] = make(map[string]int64)
	}
	t.excluded = make(map[string]struct{})
	if err := t.store.ResetWeek(context.Background()); err != nil {
		metrics.StoreWriteErrors.Inc()
		t.logger.Error().Err(err).Msg("Failed to persist week reset at rollover")
	}

	reopen := present
	if !presentKnown {
		reopen = wasOpen
		t.logger.Warn().Msg("Presence unknown at rollover, re-opening all flushed sessions")
	}
	for _, userID := range reopen {
		t.open[userID] = boundary
		t.persistPutSession(userID, boundary)
	}

	metrics.OpenSessions.Set(float64(len(t.open)))
	t.logger.Info().
		Int("flushed", len(wasOpen)).
		Int("reopened", len(reopen)).
		Time("boundary", boundary).
		Msg("Week rolled over")

	return snapshot
}

func (t *Tracker) persistPutSession(userID string, start time.Time) {
	err := t.store.PutOpenSession(context.Background(), storage.OpenSession{UserID: userID, StartedAt: start})
	if err != nil {
		metrics.StoreWriteErrors.Inc()
		t.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist open session")
	}
}

func (t *Tracker) persistDeleteSession(userID string) {
	err := t.store.DeleteOpenSession(context.Background(), userID)
	if err != nil && err != storage.ErrNotFound {
		metrics.StoreWriteErrors.Inc()
		t.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist session removal")
	}
}
