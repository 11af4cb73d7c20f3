package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Webhook posts notification lines as JSON to a configured endpoint.
type Webhook struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration, logger zerolog.Logger) *Webhook {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

type message struct {
	Kind   string  `json:"kind"`
	Text   string  `json:"text"`
	Report *Report `json:"report,omitempty"`
}

// SessionClosed announces a credited session.
func (w *Webhook) SessionClosed(userID string, start, end time.Time, credited time.Duration) {
	w.post(message{
		Kind: "session_closed",
		Text: fmt.Sprintf("🔴 %s ~ %s (%s, %s credited)",
			start.Format("15:04:05"), end.Format("15:04:05"), userID, formatDuration(credited)),
	})
}

// RecoveryCredit announces time recovered after a restart.
func (w *Webhook) RecoveryCredit(userID string, start, end time.Time, credited time.Duration) {
	w.post(message{
		Kind: "recovery_credit",
		Text: fmt.Sprintf("♻️ recovered %s for %s (%s ~ %s)",
			formatDuration(credited), userID, start.Format("15:04:05"), end.Format("15:04:05")),
	})
}

// WeeklyReport delivers the end-of-week evaluation.
func (w *Webhook) WeeklyReport(report Report) {
	w.post(message{
		Kind:   "weekly_report",
		Text:   FormatReport(report),
		Report: &report,
	})
}

// Reminder delivers a one-shot reminder.
func (w *Webhook) Reminder(userID string) {
	w.post(message{
		Kind: "reminder",
		Text: fmt.Sprintf("⏰ reminder for %s", userID),
	})
}

func (w *Webhook) post(msg message) {
	body, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error().Err(err).Str("kind", msg.Kind).Msg("Failed to encode notification")
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logger.Error().Err(err).Str("kind", msg.Kind).Msg("Failed to deliver notification")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		w.logger.Error().
			Str("kind", msg.Kind).
			Str("status", resp.Status).
			Msg("Notification rejected by webhook")
	}
}

// FormatReport renders the weekly report as a readable multi-line summary.
func FormatReport(report Report) string {
	var buf bytes.Buffer

	buf.WriteString("📊 Weekly presence summary (week of ")
	buf.WriteString(report.WeekStart.Format("2006-01-02"))
	buf.WriteString(")\n")

	for _, day := range report.Days {
		fmt.Fprintf(&buf, "🗓 %s:\n", weekdayNames[day.Weekday])
		if len(day.Users) == 0 {
			buf.WriteString("  └ no activity\n")
			continue
		}
		for _, user := range day.Users {
			fmt.Fprintf(&buf, "  └ %s: %s\n", user.Name, formatDuration(time.Duration(user.Seconds)*time.Second))
		}
	}

	fmt.Fprintf(&buf, "\nSucceeded: %s\n", joinOrNone(report.Succeeded))
	fmt.Fprintf(&buf, "Failed: %s\n", joinOrNone(report.Failed))
	if len(report.Excluded) > 0 {
		fmt.Fprintf(&buf, "Opted out: %s\n", joinOrNone(report.Excluded))
	}
	if report.Degraded {
		buf.WriteString("⚠️ member list unavailable: inactive members are not listed\n")
	}

	return buf.String()
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	out := names[0]
	for _, name := range names[1:] {
		out += ", " + name
	}
	return out
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
