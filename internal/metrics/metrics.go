package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weekwatch_sessions_opened_total",
			Help: "Total presence sessions opened",
		},
	)

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekwatch_sessions_closed_total",
			Help: "Total presence sessions closed, by outcome",
		},
		[]string{"outcome"}, // "credited" or "discarded"
	)

	CreditedSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weekwatch_credited_seconds_total",
			Help: "Total seconds credited to weekday buckets",
		},
	)

	OpenSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weekwatch_open_sessions",
			Help: "Number of currently open presence sessions",
		},
	)

	// Event anomalies (duplicate enter, leave without session)
	AnomalousEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekwatch_anomalous_events_total",
			Help: "Presence events ignored as anomalous",
		},
		[]string{"kind"},
	)

	// Weekly evaluation metrics
	WeeklyReports = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weekwatch_weekly_reports_total",
			Help: "Weekly reports emitted",
		},
	)

	// Storage metrics
	StoreWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weekwatch_store_write_errors_total",
			Help: "Durable-write failures retained in-memory only",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsOpened,
		SessionsClosed,
		CreditedSeconds,
		OpenSessions,
		AnomalousEvents,
		WeeklyReports,
		StoreWriteErrors,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
