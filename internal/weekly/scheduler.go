package weekly

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/weekwatch/internal/clock"
	"github.com/goodtune/weekwatch/internal/metrics"
	"github.com/goodtune/weekwatch/internal/notify"
	"github.com/goodtune/weekwatch/internal/presence"
	"github.com/goodtune/weekwatch/internal/tracker"
	"github.com/rs/zerolog"
)

// Scheduler fires the weekly rollover at Monday 00:00 in the tracking
// timezone: it flushes open sessions, evaluates the finished week, and
// publishes the report.
type Scheduler struct {
	tracker  *tracker.Tracker
	gateway  presence.Gateway
	notifier notify.Notifier
	clock    clock.Clock
	loc      *time.Location
	tiers    tracker.Tiers
	logger   zerolog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a weekly rollover scheduler.
func NewScheduler(tr *tracker.Tracker, gateway presence.Gateway, notifier notify.Notifier, clk clock.Clock, loc *time.Location, tiers tracker.Tiers, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		tracker:  tr,
		gateway:  gateway,
		notifier: notifier,
		clock:    clk,
		loc:      loc,
		tiers:    tiers,
		logger:   logger.With().Str("component", "weekly-scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() {
	go s.run()
	s.logger.Info().
		Time("next_rollover", clock.NextWeekStart(s.clock.Now().In(s.loc))).
		Msg("Weekly rollover scheduler started")
}

// Stop stops the scheduler. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info().Msg("Weekly rollover scheduler stopped")
	})
}

// run is the main scheduler loop. The next boundary is recomputed every
// iteration so clock adjustments and DST shifts never accumulate drift.
func (s *Scheduler) run() {
	for {
		now := s.clock.Now().In(s.loc)
		boundary := clock.NextWeekStart(now)
		waitDuration := boundary.Sub(now)

		s.logger.Info().
			Time("next_rollover", boundary).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next weekly rollover")

		select {
		case <-time.After(waitDuration):
			s.performRollover(boundary)
		case <-s.stopChan:
			return
		}
	}
}

// performRollover executes one boundary crossing. Failures in any step
// are logged and must not kill the loop: the tracker state is always left
// consistent, only the published report may be degraded.
func (s *Scheduler) performRollover(boundary time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Rollover panicked, scheduler continues")
		}
	}()

	s.logger.Info().Time("boundary", boundary).Msg("Performing weekly rollover")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	present, err := s.gateway.Present(ctx)
	presentKnown := err == nil
	if err != nil {
		s.logger.Error().Err(err).Msg("Presence query failed at rollover")
	}

	snapshot := s.tracker.Rollover(boundary, present, presentKnown)

	members, err := s.gateway.Members(ctx)
	membersKnown := err == nil
	if err != nil {
		s.logger.Error().Err(err).Msg("Member list unavailable, report will be degraded")
	}

	eval := tracker.Evaluate(snapshot, members, membersKnown, s.tiers)
	report := s.buildReport(ctx, boundary, snapshot, eval)

	s.notifier.WeeklyReport(report)
	metrics.WeeklyReports.Inc()

	s.logger.Info().
		Int("succeeded", len(eval.Succeeded)).
		Int("failed", len(eval.Failed)).
		Int("excluded", len(eval.Excluded)).
		Bool("degraded", report.Degraded).
		Msg("Weekly rollover complete")
}

// buildReport renders the evaluation into the notifier's report shape,
// resolving display names where the bridge can provide them.
func (s *Scheduler) buildReport(ctx context.Context, boundary time.Time, snapshot tracker.Snapshot, eval tracker.Evaluation) notify.Report {
	report := notify.Report{
		WeekStart: boundary.AddDate(0, 0, -7),
		Succeeded: s.displayNames(ctx, eval.Succeeded),
		Failed:    s.displayNames(ctx, eval.Failed),
		Excluded:  s.displayNames(ctx, eval.Excluded),
		Degraded:  eval.Degraded,
	}

	for wd := 0; wd < 7; wd++ {
		line := notify.DayLine{Weekday: wd}
		for userID, seconds := range snapshot.Days[wd] {
			line.Users = append(line.Users, notify.UserTime{
				Name:    s.displayName(ctx, userID),
				Seconds: seconds,
			})
		}
		sort.Slice(line.Users, func(i, j int) bool { return line.Users[i].Name < line.Users[j].Name })
		report.Days = append(report.Days, line)
	}
	return report
}

func (s *Scheduler) displayNames(ctx context.Context, userIDs []string) []string {
	out := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		out = append(out, s.displayName(ctx, userID))
	}
	return out
}

// displayName falls back to the raw ID when the bridge cannot resolve it.
func (s *Scheduler) displayName(ctx context.Context, userID string) string {
	name, err := s.gateway.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}
