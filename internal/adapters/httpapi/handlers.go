package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			slog.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/v1/portfolios
func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var in domain.NewPortfolio
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.ledger.CreatePortfolio(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GET /api/v1/portfolios?status=active
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParsePortfolioStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.ledger.ListPortfolios(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// GET /api/v1/portfolios/{id}
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.GetPortfolio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if view.OpenPositions == nil {
		view.OpenPositions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, view)
}

// PATCH /api/v1/portfolios/{id}
func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if err := decode(w, r, &fields); err != nil {
		writeError(w, err)
		return
	}
	patch, err := domain.ParsePortfolioPatch(fields)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.ledger.UpdatePortfolio(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DELETE /api/v1/portfolios/{id}
func (s *Server) handlePurgePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.PurgePortfolio(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/portfolios/{id}/signals
// Body: a JSON array of signals, or {"signals": [...]}.
func (s *Server) handleSubmitSignals(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decode(w, r, &raw); err != nil {
		writeError(w, err)
		return
	}
	signals, err := parseSignals(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	stored, err := s.ledger.SubmitSignals(r.Context(), chi.URLParam(r, "id"), signals)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// GET /api/v1/portfolios/{id}/signals
func (s *Server) handlePendingSignals(w http.ResponseWriter, r *http.Request) {
	sigs, err := s.ledger.PendingSignals(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sigs))
}

// POST /api/v1/portfolios/{id}/execute
func (s *Server) handleExecuteSignals(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.ExecuteSignals(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if summary.Results == nil {
		summary.Results = []domain.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, summary)
}

// POST /api/v1/portfolios/{id}/signals/{signalID}/execute
func (s *Server) handleExecuteSignal(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.ExecuteSignal(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "signalID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/v1/portfolios/{id}/positions?status=open
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParsePositionStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	positions, err := s.ledger.Positions(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(positions))
}

// POST /api/v1/portfolios/{id}/positions/{positionID}/settle
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExitPrice *float64 `json:"exit_price"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ExitPrice == nil {
		writeError(w, fmt.Errorf("%w: exit_price is required", domain.ErrInvalidExitPrice))
		return
	}
	res, err := s.ledger.Settle(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "positionID"), *body.ExitPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/portfolios/{id}/reprice
func (s *Server) handleRepriceOne(w http.ResponseWriter, r *http.Request) {
	s.reprice(w, r, chi.URLParam(r, "id"))
}

// POST /api/v1/reprice
func (s *Server) handleRepriceAll(w http.ResponseWriter, r *http.Request) {
	s.reprice(w, r)
}

// reprice answers 200 with the report when the pass ran, even if some
// portfolios failed; their errors are in the report.
func (s *Server) reprice(w http.ResponseWriter, r *http.Request, ids ...string) {
	report, err := s.ledger.Reprice(r.Context(), ids...)
	if err != nil && len(report.Portfolios) == 0 {
		writeError(w, err)
		return
	}
	if report.Portfolios == nil {
		report.Portfolios = []domain.PortfolioRepricing{}
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/v1/portfolios/{id}/trades?status=closed&limit=50
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParsePositionStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := parseLimit(r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	trades, err := s.ledger.Trades(r.Context(), chi.URLParam(r, "id"), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(trades))
}

// GET /api/v1/portfolios/{id}/history?limit=30
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 30)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.ledger.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(history))
}

// POST /api/v1/portfolios/{id}/snapshots
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// --- helpers ---

// errBadRequest marks malformed input that never reached the ledger.
var errBadRequest = errors.New("bad request")

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func parseSignals(raw json.RawMessage) ([]domain.Signal, error) {
	var list []domain.Signal
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Signals []domain.Signal `json:"signals"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: expected an array of signals: %v", errBadRequest, err)
	}
	return wrapped.Signals, nil
}

func parseLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
	}
	return n, nil
}

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPortfolioNotFound),
		errors.Is(err, domain.ErrSignalNotFound),
		errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPortfolioInactive),
		errors.Is(err, domain.ErrSignalExecuted),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuotesUnavailable):
		return http.StatusBadGateway
	case domain.IsRejection(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := publicMessage(err)
	if status == http.StatusInternalServerError {
		slog.Error("http handler failed", "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// callPrefix matches the "pkg.Func: " wrapping added on the way up.
var callPrefix = regexp.MustCompile(`^(?:[a-z]+\.[A-Z]\w*: )+`)

func publicMessage(err error) string {
	return callPrefix.ReplaceAllString(err.Error(), "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("http response encode failed", "err", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
