package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/goodtune/weekwatch/internal/clock"
	"github.com/goodtune/weekwatch/internal/tracker"
	"github.com/gorilla/mux"
)

// eventRequest is a presence event from the bridge. The timestamp is
// optional: events delivered live omit it and are stamped on receipt.
type eventRequest struct {
	UserID string `json:"user_id"`
	At     string `json:"at,omitempty"` // RFC 3339
}

// eventTime resolves the event timestamp, defaulting to now.
func (s *Server) eventTime(raw string) (time.Time, error) {
	if raw == "" {
		return s.clock.Now(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (s *Server) decodeEvent(w http.ResponseWriter, r *http.Request) (eventRequest, time.Time, bool) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return req, time.Time{}, false
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return req, time.Time{}, false
	}
	at, err := s.eventTime(req.At)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "at must be RFC 3339")
		return req, time.Time{}, false
	}
	return req, at, true
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	req, at, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}
	s.tracker.HandleEnter(req.UserID, at)
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	req, at, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}
	s.tracker.HandleLeave(req.UserID, at)
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress := s.tracker.LiveProgress(s.clock.Now())
	WriteJSON(w, http.StatusOK, map[string]interface{}{"users": progress})
}

// summaryDay is one weekday's per-user listing.
type summaryDay struct {
	Weekday int            `json:"weekday"`
	Users   []summaryEntry `json:"users"`
}

type summaryEntry struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Seconds int64  `json:"seconds"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()

	days := make([]summaryDay, 7)
	for wd := 0; wd < 7; wd++ {
		days[wd].Weekday = wd
		for userID, seconds := range snap.Days[wd] {
			days[wd].Users = append(days[wd].Users, summaryEntry{
				UserID:  userID,
				Name:    s.resolveName(r.Context(), userID),
				Seconds: seconds,
			})
		}
		sort.Slice(days[wd].Users, func(i, j int) bool {
			return days[wd].Users[i].UserID < days[wd].Users[j].UserID
		})
	}

	excluded := make([]string, 0, len(snap.Excluded))
	for userID := range snap.Excluded {
		excluded = append(excluded, userID)
	}
	sort.Strings(excluded)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"week_start": clock.WeekStart(s.clock.Now()).Format(time.RFC3339),
		"days":       days,
		"excluded":   excluded,
	})
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	eval := s.tracker.Projection(s.clock.Now(), s.tiers)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"succeeded": eval.Succeeded,
		"failed":    eval.Failed,
		"excluded":  eval.Excluded,
		"results":   eval.Results,
	})
}

func (s *Server) handleOptOut(w http.ResponseWriter, r *http.Request) {
	req, at, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}
	if err := s.tracker.OptOut(req.UserID, at); err != nil {
		if errors.Is(err, tracker.ErrOptOutWindowClosed) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "opted_out"})
}

func (s *Server) handleOptIn(w http.ResponseWriter, r *http.Request) {
	req, _, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}
	s.tracker.OptIn(req.UserID)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "opted_in"})
}

type creditRequest struct {
	UserID  string `json:"user_id"`
	Weekday int    `json:"weekday"`
	Minutes int64  `json:"minutes"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	err := s.tracker.ManualCredit(req.UserID, req.Weekday, req.Minutes*60)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidWeekday) || errors.Is(err, tracker.ErrNonPositiveCredit) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}

type resetRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// handleReset clears one user when user_id is given, otherwise the whole
// week.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.UserID != "" {
		s.tracker.ResetUser(req.UserID)
	} else {
		s.tracker.ResetAll()
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type reminderRequest struct {
	UserID  string `json:"user_id"`
	Minutes int64  `json:"minutes"`
}

func (s *Server) handleScheduleReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Minutes <= 0 {
		WriteError(w, http.StatusBadRequest, "minutes must be positive")
		return
	}

	s.reminders.Schedule(req.UserID, time.Duration(req.Minutes)*time.Minute)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

func (s *Server) handleCancelReminder(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	s.reminders.Cancel(userID)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

// resolveName is best effort: the raw ID is good enough when the bridge
// cannot answer.
func (s *Server) resolveName(ctx context.Context, userID string) string {
	if s.gateway == nil {
		return ""
	}
	name, err := s.gateway.DisplayName(ctx, userID)
	if err != nil {
		return ""
	}
	return name
}
