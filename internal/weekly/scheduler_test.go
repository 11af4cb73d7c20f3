package weekly

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/weekwatch/internal/clock"
	"github.com/goodtune/weekwatch/internal/notify"
	"github.com/goodtune/weekwatch/internal/storage/bolt"
	"github.com/goodtune/weekwatch/internal/tracker"
	"github.com/rs/zerolog"
)

type fakeGateway struct {
	present    []string
	members    []string
	presentErr error
	membersErr error
	names      map[string]string
}

func (f *fakeGateway) Present(context.Context) ([]string, error) {
	return f.present, f.presentErr
}

func (f *fakeGateway) Members(context.Context) ([]string, error) {
	return f.members, f.membersErr
}

func (f *fakeGateway) DisplayName(_ context.Context, userID string) (string, error) {
	if name, ok := f.names[userID]; ok {
		return name, nil
	}
	return "", errors.New("unknown user")
}

type captureNotifier struct {
	mu      sync.Mutex
	reports []notify.Report
}

func (c *captureNotifier) SessionClosed(string, time.Time, time.Time, time.Duration)  {}
func (c *captureNotifier) RecoveryCredit(string, time.Time, time.Time, time.Duration) {}
func (c *captureNotifier) Reminder(string)                                            {}

func (c *captureNotifier) WeeklyReport(report notify.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
}

func setup(t *testing.T, gw *fakeGateway) (*Scheduler, *tracker.Tracker, *captureNotifier, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}

	store, err := bolt.Open(filepath.Join(t.TempDir(), "weekwatch.bolt"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	notifier := &captureNotifier{}
	clk := &clock.TestClock{CurrentTime: time.Date(2024, 1, 7, 23, 0, 0, 0, loc)}
	tr := tracker.New(store.Week(), tracker.Config{Location: loc}, clk, notify.Nop{}, zerolog.Nop())

	sched := NewScheduler(tr, gw, notifier, clk, loc, tracker.DefaultTiers(), zerolog.Nop())
	return sched, tr, notifier, loc
}

func TestPerformRolloverPublishesReport(t *testing.T) {
	gw := &fakeGateway{
		present: []string{"alice"},
		members: []string{"alice", "bob"},
		names:   map[string]string{"alice": "Alice", "bob": "Bob"},
	}
	sched, tr, notifier, loc := setup(t, gw)

	if err := tr.ManualCredit("alice", 0, 5*3600); err != nil {
		t.Fatal(err)
	}
	tr.HandleEnter("alice", time.Date(2024, 1, 7, 22, 0, 0, 0, loc))

	boundary := time.Date(2024, 1, 8, 0, 0, 0, 0, loc)
	sched.performRollover(boundary)

	if len(notifier.reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(notifier.reports))
	}
	report := notifier.reports[0]

	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, loc); !report.WeekStart.Equal(want) {
		t.Errorf("WeekStart = %v, want %v", report.WeekStart, want)
	}
	if len(report.Succeeded) != 1 || report.Succeeded[0] != "Alice" {
		t.Errorf("Succeeded = %v, want [Alice] with resolved display name", report.Succeeded)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "Bob" {
		t.Errorf("Failed = %v, want [Bob] for the idle member", report.Failed)
	}
	if report.Degraded {
		t.Error("report must not be degraded when the roster is available")
	}
	if len(report.Days) != 7 {
		t.Fatalf("got %d day lines, want 7", len(report.Days))
	}
	// Sunday 22:00 to the boundary is two hours of flushed session time.
	var sunday int64
	for _, user := range report.Days[6].Users {
		if user.Name == "Alice" {
			sunday = user.Seconds
		}
	}
	if sunday != 2*3600 {
		t.Errorf("Sunday flushed seconds = %d, want 7200", sunday)
	}

	// The still-present user carries a fresh session into the new week.
	tr.HandleLeave("alice", boundary.Add(time.Hour))
	if got := tr.Snapshot().Days[0]["alice"]; got != 3600 {
		t.Errorf("new week credit = %d, want 3600", got)
	}
}

func TestPerformRolloverDegradedWithoutRoster(t *testing.T) {
	gw := &fakeGateway{
		presentErr: errors.New("bridge down"),
		membersErr: errors.New("bridge down"),
	}
	sched, tr, notifier, loc := setup(t, gw)

	tr.HandleEnter("alice", time.Date(2024, 1, 7, 20, 0, 0, 0, loc))

	boundary := time.Date(2024, 1, 8, 0, 0, 0, 0, loc)
	sched.performRollover(boundary)

	if len(notifier.reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(notifier.reports))
	}
	if !notifier.reports[0].Degraded {
		t.Error("report must be degraded when the member list is unavailable")
	}

	// Presence unknown: the flushed session is re-opened at the boundary.
	tr.HandleLeave("alice", boundary.Add(time.Hour))
	if got := tr.Snapshot().Days[0]["alice"]; got != 3600 {
		t.Errorf("re-opened session credit = %d, want 3600", got)
	}
}

func TestStartStop(t *testing.T) {
	sched, _, _, _ := setup(t, &fakeGateway{})
	sched.Start()
	sched.Stop()
}
