// Package dashboard serves a read-only JSON view of the ledger alongside the
// bot's Prometheus metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"kasbot/internal/ledger"
	"kasbot/internal/logging"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultLimit caps /api/transactions when no limit is given.
const DefaultLimit = 100

// Reader is the read side of the ledger.
type Reader interface {
	Balance(ctx context.Context) (float64, error)
	MonthlySummary(ctx context.Context) (ledger.Summary, error)
	SavingsGoals(ctx context.Context) ([]ledger.Goal, error)
	Transactions(ctx context.Context, limit int) ([]ledger.Transaction, error)
}

// Server is the dashboard HTTP server.
type Server struct {
	reader   Reader
	gatherer prometheus.Gatherer
	router   *mux.Router
	started  time.Time
}

// New builds the router. A nil gatherer leaves /metrics unregistered.
func New(reader Reader, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		reader:   reader,
		gatherer: gatherer,
		router:   mux.NewRouter(),
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/transactions", s.handleTransactions).Methods("GET")
	s.router.HandleFunc("/api/balance", s.handleBalance).Methods("GET")
	s.router.HandleFunc("/api/summary", s.handleSummary).Methods("GET")
	s.router.HandleFunc("/api/goals", s.handleGoals).Methods("GET")

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Dashboard("dashboard listening on http://%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.DashboardError("shutdown: %v", err)
		return err
	}
	<-errCh
	logging.Dashboard("dashboard stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.DashboardError("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

type transactionView struct {
	ID          int64   `json:"id"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Date        string  `json:"date"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	txs, err := s.reader.Transactions(r.Context(), limit)
	if err != nil {
		s.internalError(w, "transactions", err)
		return
	}
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionView{
			ID:          t.ID,
			Amount:      t.Amount,
			Category:    t.Category,
			Type:        string(t.Kind),
			Description: t.Description,
			Date:        t.CreatedAt.Format("2006-01-02"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.reader.Balance(r.Context())
	if err != nil {
		s.internalError(w, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": bal})
}

type summaryView struct {
	ledger.Summary
	SavingsRate float64 `json:"savings_rate"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.reader.MonthlySummary(r.Context())
	if err != nil {
		s.internalError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summaryView{Summary: sum, SavingsRate: sum.SavingsRate()})
}

type goalView struct {
	ledger.Goal
	Progress float64 `json:"progress"`
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.reader.SavingsGoals(r.Context())
	if err != nil {
		s.internalError(w, "goals", err)
		return
	}
	out := make([]goalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, goalView{Goal: g, Progress: g.Progress()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	logging.DashboardError("%s: %v", what, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
