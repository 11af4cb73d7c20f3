package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/weekwatch/internal/clock"
	"github.com/goodtune/weekwatch/internal/config"
	"github.com/goodtune/weekwatch/internal/storage"
	"github.com/goodtune/weekwatch/internal/tracker"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the current week's standings",
	Long: `Print the running week's per-day recorded time and a projection of who
would succeed if the week ended now. Reads the storage backend directly;
the server does not need to be running.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

var weekdayLabels = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	loc, err := time.LoadLocation(cfg.Tracking.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	ctx := context.Background()
	week := store.Week()

	usage, err := week.ListDayUsage(ctx)
	if err != nil {
		return fmt.Errorf("failed to read day usage: %w", err)
	}
	excluded, err := week.ListExclusions(ctx)
	if err != nil {
		return fmt.Errorf("failed to read exclusions: %w", err)
	}
	sessions, err := week.ListOpenSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to read open sessions: %w", err)
	}

	var snap tracker.Snapshot
	for i := range snap.Days {
		snap.Days[i] = make(map[string]int64)
	}
	snap.Excluded = make(map[string]struct{})
	for _, u := range usage {
		if u.Weekday >= 0 && u.Weekday < 7 {
			snap.Days[u.Weekday][u.UserID] += u.Seconds
		}
	}
	for _, userID := range excluded {
		snap.Excluded[userID] = struct{}{}
	}

	// Count still-open sessions up to now, like the live projection does.
	now := time.Now().In(loc)
	for _, s := range sessions {
		for _, seg := range clock.SplitByDay(s.StartedAt.In(loc), now) {
			snap.Days[seg.Weekday][s.UserID] += seg.Seconds
		}
	}

	tiers := tracker.Tiers{
		SingleDayMinimum: parseDuration(cfg.Evaluation.SingleDayMinimum, 4*time.Hour),
		MultiDayMinimum:  parseDuration(cfg.Evaluation.MultiDayMinimum, time.Hour),
		WeeklyGoal:       parseDuration(cfg.Evaluation.WeeklyGoal, 4*time.Hour),
	}
	eval := tracker.Evaluate(snap, nil, false, tiers)

	printReport(snap, eval, sessions, now)
	return nil
}

func printReport(snap tracker.Snapshot, eval tracker.Evaluation, sessions []storage.OpenSession, now time.Time) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	cyan.Printf("Week of %s\n\n", clock.WeekStart(now).Format("2006-01-02"))

	for wd := 0; wd < 7; wd++ {
		fmt.Printf("%-10s", weekdayLabels[wd])
		if len(snap.Days[wd]) == 0 {
			yellow.Println("no activity")
			continue
		}
		fmt.Println()

		users := make([]string, 0, len(snap.Days[wd]))
		for userID := range snap.Days[wd] {
			users = append(users, userID)
		}
		sort.Strings(users)
		for _, userID := range users {
			fmt.Printf("  %-24s %s\n", userID, formatSeconds(snap.Days[wd][userID]))
		}
	}

	fmt.Println()
	if len(sessions) > 0 {
		yellow.Printf("Open sessions: %d (counted up to now)\n", len(sessions))
	}

	green.Printf("On track:  %s\n", joinOrDash(eval.Succeeded))
	red.Printf("Behind:    %s\n", joinOrDash(eval.Failed))
	if len(eval.Excluded) > 0 {
		yellow.Printf("Opted out: %s\n", joinOrDash(eval.Excluded))
	}
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	out := names[0]
	for _, name := range names[1:] {
		out += ", " + name
	}
	return out
}

func formatSeconds(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
