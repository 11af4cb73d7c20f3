package reminder

import (
	"sync"
	"time"

	"github.com/goodtune/weekwatch/internal/notify"
	"github.com/rs/zerolog"
)

// Service manages one-shot per-user reminder timers. Scheduling a second
// reminder for a user replaces the first; reminders do not survive a
// restart.
type Service struct {
	notifier notify.Notifier
	logger   zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a reminder service.
func New(notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		notifier: notifier,
		logger:   logger.With().Str("component", "reminder").Logger(),
		timers:   make(map[string]*time.Timer),
	}
}

// Schedule arms a reminder for the user after the given delay, replacing
// any pending one.
func (s *Service) Schedule(userID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[userID]; ok {
		timer.Stop()
	}

	s.timers[userID] = time.AfterFunc(delay, func() { s.fire(userID) })
	s.logger.Info().
		Str("user_id", userID).
		Dur("delay", delay).
		Msg("Reminder scheduled")
}

// Cancel stops the user's pending reminder. Canceling a user without one
// is a no-op, so cancel is always safe to call.
func (s *Service) Cancel(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[userID]
	if !ok {
		return
	}
	timer.Stop()
	delete(s.timers, userID)
	s.logger.Info().Str("user_id", userID).Msg("Reminder canceled")
}

// Pending reports whether the user has a reminder armed.
func (s *Service) Pending(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[userID]
	return ok
}

// Stop cancels all pending reminders.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, userID)
	}
	s.logger.Info().Msg("Reminder service stopped")
}

func (s *Service) fire(userID string) {
	s.mu.Lock()
	delete(s.timers, userID)
	s.mu.Unlock()

	s.logger.Info().Str("user_id", userID).Msg("Reminder fired")
	s.notifier.Reminder(userID)
}
