package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/weekwatch/internal/clock"
	"github.com/goodtune/weekwatch/internal/notify"
	"github.com/goodtune/weekwatch/internal/reminder"
	"github.com/goodtune/weekwatch/internal/storage/bolt"
	"github.com/goodtune/weekwatch/internal/tracker"
	"github.com/rs/zerolog"
)

func testServer(t *testing.T) (*Server, *tracker.Tracker, *clock.TestClock, *time.Location) {
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

	clk := &clock.TestClock{CurrentTime: time.Date(2024, 1, 3, 12, 0, 0, 0, loc)}
	tr := tracker.New(store.Week(), tracker.Config{Location: loc}, clk, notify.Nop{}, zerolog.Nop())
	reminders := reminder.New(notify.Nop{}, zerolog.Nop())
	t.Cleanup(reminders.Stop)

	srv := NewServer(Config{}, tr, reminders, nil, clk, tracker.DefaultTiers(), zerolog.Nop())
	return srv, tr, clk, loc
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := testServer(t)

	rec := doJSON(t, srv, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

func TestEnterLeaveCreditsTime(t *testing.T) {
	srv, tr, clk, loc := testServer(t)

	rec := doJSON(t, srv, "POST", "/v1/events/enter", `{"user_id":"alice"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enter status = %d: %s", rec.Code, rec.Body)
	}

	clk.CurrentTime = time.Date(2024, 1, 3, 13, 0, 0, 0, loc)
	rec = doJSON(t, srv, "POST", "/v1/events/leave", `{"user_id":"alice"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("leave status = %d: %s", rec.Code, rec.Body)
	}

	if got := tr.Snapshot().Days[2]["alice"]; got != 3600 {
		t.Errorf("credited %d seconds, want 3600", got)
	}
}

func TestEventWithExplicitTimestamp(t *testing.T) {
	srv, tr, _, _ := testServer(t)

	doJSON(t, srv, "POST", "/v1/events/enter", `{"user_id":"alice","at":"2024-01-03T10:00:00+09:00"}`)
	doJSON(t, srv, "POST", "/v1/events/leave", `{"user_id":"alice","at":"2024-01-03T11:30:00+09:00"}`)

	if got := tr.Snapshot().Days[2]["alice"]; got != 5400 {
		t.Errorf("credited %d seconds, want 5400", got)
	}
}

func TestEventValidation(t *testing.T) {
	srv, _, _, _ := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing user_id", `{}`},
		{"bad timestamp", `{"user_id":"alice","at":"yesterday"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, "POST", "/v1/events/enter", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreditValidation(t *testing.T) {
	srv, tr, _, _ := testServer(t)

	rec := doJSON(t, srv, "POST", "/v1/credit", `{"user_id":"alice","weekday":7,"minutes":30}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("weekday 7 status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, srv, "POST", "/v1/credit", `{"user_id":"alice","weekday":2,"minutes":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero minutes status = %d, want 400", rec.Code)
	}

	// Rejected requests must not mutate state.
	for wd := 0; wd < 7; wd++ {
		if got := tr.Snapshot().Days[wd]["alice"]; got != 0 {
			t.Errorf("rejected credit landed %d seconds on weekday %d", got, wd)
		}
	}

	rec = doJSON(t, srv, "POST", "/v1/credit", `{"user_id":"alice","weekday":2,"minutes":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid credit status = %d: %s", rec.Code, rec.Body)
	}
	if got := tr.Snapshot().Days[2]["alice"]; got != 1800 {
		t.Errorf("credited %d seconds, want 1800", got)
	}
}

func TestOptOutAfterCutoffRejected(t *testing.T) {
	srv, _, clk, loc := testServer(t)

	// Wednesday is allowed.
	rec := doJSON(t, srv, "POST", "/v1/optout", `{"user_id":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Wednesday opt-out status = %d: %s", rec.Code, rec.Body)
	}

	clk.CurrentTime = time.Date(2024, 1, 5, 12, 0, 0, 0, loc) // Friday
	rec = doJSON(t, srv, "POST", "/v1/optout", `{"user_id":"bob"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Friday opt-out status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, "POST", "/v1/optin", `{"user_id":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("opt-in status = %d", rec.Code)
	}
}

func TestProgressEndpoint(t *testing.T) {
	srv, tr, _, _ := testServer(t)

	if err := tr.ManualCredit("alice", 0, 3600); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, "GET", "/v1/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status = %d", rec.Code)
	}

	var resp struct {
		Users []tracker.UserProgress `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding progress: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].UserID != "alice" || resp.Users[0].TotalSeconds != 3600 {
		t.Errorf("unexpected progress: %+v", resp.Users)
	}
}

func TestResetSingleUser(t *testing.T) {
	srv, tr, _, _ := testServer(t)

	if err := tr.ManualCredit("alice", 0, 3600); err != nil {
		t.Fatal(err)
	}
	if err := tr.ManualCredit("bob", 0, 1800); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, "POST", "/v1/reset", `{"user_id":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	snap := tr.Snapshot()
	if _, ok := snap.Days[0]["alice"]; ok {
		t.Error("alice not reset")
	}
	if got := snap.Days[0]["bob"]; got != 1800 {
		t.Errorf("bob disturbed: %d", got)
	}
}

func TestReminderEndpoints(t *testing.T) {
	srv, _, _, _ := testServer(t)

	rec := doJSON(t, srv, "POST", "/v1/reminders", `{"user_id":"alice","minutes":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule status = %d: %s", rec.Code, rec.Body)
	}
	if !srv.reminders.Pending("alice") {
		t.Error("reminder not pending after schedule")
	}

	rec = doJSON(t, srv, "POST", "/v1/reminders", `{"user_id":"alice","minutes":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero minutes status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, "DELETE", "/v1/reminders/alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if srv.reminders.Pending("alice") {
		t.Error("reminder still pending after cancel")
	}
}
