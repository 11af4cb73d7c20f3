package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/weekwatch/internal/config"
	"github.com/goodtune/weekwatch/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Host:         mr.Addr(), // Full address "host:port"
		Port:         0,         // Not used when host contains port
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store
}

func TestWeekStore_OpenSessions(t *testing.T) {
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	week := store.Week()
	started := time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC)

	if err := week.PutOpenSession(ctx, storage.OpenSession{UserID: "user-a", StartedAt: started}); err != nil {
		t.Fatalf("PutOpenSession failed: %v", err)
	}

	sessions, err := week.ListOpenSessions(ctx)
	if err != nil {
		t.Fatalf("ListOpenSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 open session, got %d", len(sessions))
	}
	if sessions[0].UserID != "user-a" {
		t.Errorf("Expected user-a, got %s", sessions[0].UserID)
	}
	if !sessions[0].StartedAt.Equal(started) {
		t.Errorf("Expected start %v, got %v", started, sessions[0].StartedAt)
	}

	// Re-putting for the same user overwrites, never duplicates.
	if err := week.PutOpenSession(ctx, storage.OpenSession{UserID: "user-a", StartedAt: started.Add(time.Hour)}); err != nil {
		t.Fatalf("PutOpenSession failed: %v", err)
	}
	sessions, _ = week.ListOpenSessions(ctx)
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 open session after overwrite, got %d", len(sessions))
	}

	if err := week.DeleteOpenSession(ctx, "user-a"); err != nil {
		t.Fatalf("DeleteOpenSession failed: %v", err)
	}
	if err := week.DeleteOpenSession(ctx, "user-a"); err != storage.ErrNotFound {
		t.Errorf("Expected ErrNotFound on double delete, got %v", err)
	}
}

func TestWeekStore_CreditDayUsage(t *testing.T) {
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	week := store.Week()

	if err := week.CreditDayUsage(ctx, []storage.DayUsage{
		{Weekday: 0, UserID: "user-a", Seconds: 600},
	}); err != nil {
		t.Fatalf("CreditDayUsage failed: %v", err)
	}
	if err := week.CreditDayUsage(ctx, []storage.DayUsage{
		{Weekday: 0, UserID: "user-a", Seconds: 300},
		{Weekday: 6, UserID: "user-b", Seconds: 1200},
	}); err != nil {
		t.Fatalf("Second CreditDayUsage failed: %v", err)
	}

	usage, err := week.ListDayUsage(ctx)
	if err != nil {
		t.Fatalf("ListDayUsage failed: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("Expected 2 usage entries, got %d", len(usage))
	}

	got := map[string]int64{}
	for _, u := range usage {
		got[u.UserID] = u.Seconds
	}
	if got["user-a"] != 900 {
		t.Errorf("Expected user-a seconds 900, got %d", got["user-a"])
	}
	if got["user-b"] != 1200 {
		t.Errorf("Expected user-b seconds 1200, got %d", got["user-b"])
	}
}

func TestWeekStore_Exclusions(t *testing.T) {
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	week := store.Week()

	if err := week.AddExclusion(ctx, "user-a"); err != nil {
		t.Fatalf("AddExclusion failed: %v", err)
	}
	excluded, err := week.ListExclusions(ctx)
	if err != nil {
		t.Fatalf("ListExclusions failed: %v", err)
	}
	if len(excluded) != 1 || excluded[0] != "user-a" {
		t.Fatalf("Expected [user-a], got %v", excluded)
	}

	// Removing twice is not an error.
	if err := week.RemoveExclusion(ctx, "user-a"); err != nil {
		t.Fatalf("RemoveExclusion failed: %v", err)
	}
	if err := week.RemoveExclusion(ctx, "user-a"); err != nil {
		t.Fatalf("Second RemoveExclusion failed: %v", err)
	}
}

func TestWeekStore_ResetWeek(t *testing.T) {
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	week := store.Week()

	_ = week.PutOpenSession(ctx, storage.OpenSession{UserID: "user-a", StartedAt: time.Now()})
	_ = week.CreditDayUsage(ctx, []storage.DayUsage{{Weekday: 2, UserID: "user-a", Seconds: 3600}})
	_ = week.AddExclusion(ctx, "user-b")

	if err := week.ResetWeek(ctx); err != nil {
		t.Fatalf("ResetWeek failed: %v", err)
	}

	usage, _ := week.ListDayUsage(ctx)
	if len(usage) != 0 {
		t.Errorf("Expected empty usage after reset, got %v", usage)
	}
	excluded, _ := week.ListExclusions(ctx)
	if len(excluded) != 0 {
		t.Errorf("Expected empty exclusions after reset, got %v", excluded)
	}
	sessions, _ := week.ListOpenSessions(ctx)
	if len(sessions) != 1 {
		t.Errorf("Expected open session to survive reset, got %v", sessions)
	}
}

func TestWeekStore_DeleteUser(t *testing.T) {
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	week := store.Week()

	_ = week.PutOpenSession(ctx, storage.OpenSession{UserID: "user-a", StartedAt: time.Now()})
	_ = week.CreditDayUsage(ctx, []storage.DayUsage{
		{Weekday: 0, UserID: "user-a", Seconds: 600},
		{Weekday: 4, UserID: "user-a", Seconds: 600},
		{Weekday: 4, UserID: "user-b", Seconds: 600},
	})
	_ = week.AddExclusion(ctx, "user-a")

	if err := week.DeleteUser(ctx, "user-a"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	usage, _ := week.ListDayUsage(ctx)
	if len(usage) != 1 || usage[0].UserID != "user-b" {
		t.Errorf("Expected only user-b usage to remain, got %v", usage)
	}
	sessions, _ := week.ListOpenSessions(ctx)
	if len(sessions) != 0 {
		t.Errorf("Expected no open sessions, got %v", sessions)
	}
	excluded, _ := week.ListExclusions(ctx)
	if len(excluded) != 0 {
		t.Errorf("Expected no exclusions, got %v", excluded)
	}
}
