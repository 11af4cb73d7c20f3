package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/weekwatch/internal/clock"
	"github.com/goodtune/weekwatch/internal/presence"
	"github.com/goodtune/weekwatch/internal/reminder"
	"github.com/goodtune/weekwatch/internal/tracker"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
}

// Server exposes the tracking engine over HTTP: presence events from the
// bridge, progress queries, and administrative commands.
type Server struct {
	config    Config
	tracker   *tracker.Tracker
	reminders *reminder.Service
	gateway   presence.Gateway
	clock     clock.Clock
	tiers     tracker.Tiers
	server    *http.Server
	router    *mux.Router
	listener  net.Listener
	logger    zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, tr *tracker.Tracker, reminders *reminder.Service, gateway presence.Gateway, clk clock.Clock, tiers tracker.Tiers, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		config:    cfg,
		tracker:   tr,
		reminders: reminders,
		gateway:   gateway,
		clock:     clk,
		tiers:     tiers,
		router:    router,
		logger:    logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetListener provides a pre-bound listener (socket activation). Must be
// called before Start.
func (s *Server) SetListener(l net.Listener) {
	s.listener = l
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/events/enter", s.handleEnter).Methods("POST")
	v1.HandleFunc("/events/leave", s.handleLeave).Methods("POST")
	v1.HandleFunc("/progress", s.handleProgress).Methods("GET")
	v1.HandleFunc("/summary", s.handleSummary).Methods("GET")
	v1.HandleFunc("/projection", s.handleProjection).Methods("GET")
	v1.HandleFunc("/optout", s.handleOptOut).Methods("POST")
	v1.HandleFunc("/optin", s.handleOptIn).Methods("POST")
	v1.HandleFunc("/credit", s.handleCredit).Methods("POST")
	v1.HandleFunc("/reset", s.handleReset).Methods("POST")
	v1.HandleFunc("/reminders", s.handleScheduleReminder).Methods("POST")
	v1.HandleFunc("/reminders/{user_id}", s.handleCancelReminder).Methods("DELETE")
}

// Start starts the API server.
func (s *Server) Start() error {
	if s.listener == nil {
		l, err := net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("api listen: %w", err)
		}
		s.listener = l
	}

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Starting API server")

	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   s.clock.Now().Format(time.RFC3339),
	})
}

// LoggingMiddleware creates middleware for logging HTTP requests.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("API request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
