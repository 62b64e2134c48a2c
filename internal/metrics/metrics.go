// Package metrics provides Prometheus instrumentation for the ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignalsTotal counts signal executions by result (executed | rejected | error).
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyledger_signals_total",
		Help: "Signals processed by the execution engine",
	}, []string{"result"})

	// InvestedTotal is the cumulative virtual cash committed to positions.
	InvestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyledger_invested_usd_total",
		Help: "Cumulative amount debited by executed trades",
	})

	// SettlementsTotal counts positions closed, by outcome (won | lost).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyledger_settlements_total",
		Help: "Positions settled on market resolution",
	}, []string{"outcome"})

	// PositionsMarked counts unrealized P&L updates written by repricing.
	PositionsMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyledger_positions_marked_total",
		Help: "Open positions marked to market",
	})

	// PositionsSkipped counts open positions left untouched for lack of a quote.
	PositionsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyledger_positions_skipped_total",
		Help: "Open positions without a quote during repricing",
	})

	// RepriceDuration tracks full repricing passes.
	RepriceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyledger_reprice_duration_seconds",
		Help:    "Duration of a repricing pass in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// RepriceFailures counts passes aborted before writing (quote fetch failures).
	RepriceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyledger_reprice_failures_total",
		Help: "Repricing passes aborted before any write",
	})

	// JobRuns counts scheduled job runs by job and result (ok | error | skipped).
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyledger_job_runs_total",
		Help: "Scheduled job runs",
	}, []string{"job", "result"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polyledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. The route label is chi's pattern
// (/api/v1/portfolios/{id}) so portfolio ids do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
