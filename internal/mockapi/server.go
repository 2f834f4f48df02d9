// Package mockapi is an in-memory stand-in for the payments API, used for
// local trial runs and tests.
package mockapi

import (
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

type payment struct {
	amount      float64
	processedAt time.Time
	fallback    bool
}

type totals struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalAmount   float64 `json:"totalAmount"`
}

type summary struct {
	Default  totals `json:"default"`
	Fallback totals `json:"fallback"`
}

// Config tunes the mock.
type Config struct {
	// SummaryDelay is added to every summary response
	SummaryDelay time.Duration

	// FallbackEvery routes every Nth payment to the fallback processor; 0 never
	FallbackEvery int

	Logger *logrus.Logger
}

// Server serves /payments, /payments-summary, /purge-payments and /check-status.
type Server struct {
	config Config
	logger *logrus.Logger
	now    func() time.Time

	mu       sync.RWMutex
	payments map[uuid.UUID]payment
	seq      int
}

// New creates a mock server.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		config:   config,
		logger:   logger,
		now:      time.Now,
		payments: make(map[uuid.UUID]payment),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments", s.handlePayment)
	mux.HandleFunc("/payments-summary", s.handleSummary)
	mux.HandleFunc("/purge-payments", s.handlePurge)
	mux.HandleFunc("/check-status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Count returns the number of stored payments.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CorrelationID string  `json:"correlationId"`
		Amount        float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.CorrelationID)
	if err != nil || req.Amount <= 0 {
		http.Error(w, "invalid payment", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	if _, dup := s.payments[id]; dup {
		s.mu.Unlock()
		http.Error(w, "duplicate correlationId", http.StatusConflict)
		return
	}
	s.seq++
	fallback := s.config.FallbackEvery > 0 && s.seq%s.config.FallbackEvery == 0
	s.payments[id] = payment{amount: req.Amount, processedAt: s.now().UTC(), fallback: fallback}
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	from, okFrom := parseTime(r.URL.Query().Get("from"))
	to, okTo := parseTime(r.URL.Query().Get("to"))
	if !okFrom || !okTo {
		http.Error(w, "invalid from/to", http.StatusBadRequest)
		return
	}

	if s.config.SummaryDelay > 0 {
		time.Sleep(s.config.SummaryDelay)
	}

	var out summary
	s.mu.RLock()
	for _, p := range s.payments {
		if !from.IsZero() && p.processedAt.Before(from) {
			continue
		}
		if !to.IsZero() && p.processedAt.After(to) {
			continue
		}
		t := &out.Default
		if p.fallback {
			t = &out.Fallback
		}
		t.TotalRequests++
		t.TotalAmount += p.amount
	}
	s.mu.RUnlock()

	out.Default.TotalAmount = math.Round(out.Default.TotalAmount*100) / 100
	out.Fallback.TotalAmount = math.Round(out.Fallback.TotalAmount*100) / 100

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.WithError(err).Warn("Failed to write summary")
	}
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	n := len(s.payments)
	s.payments = make(map[uuid.UUID]payment)
	s.seq = 0
	s.mu.Unlock()

	s.logger.WithField("purged", n).Info("Payments purged")
	w.WriteHeader(http.StatusOK)
}

// parseTime accepts an empty value (unbounded) or an RFC 3339 instant.
func parseTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(isoMillis, v); err == nil {
		return t, true
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	return t, err == nil
}
