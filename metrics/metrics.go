// Package metrics exposes Prometheus instrumentation for the distributor.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "royalty_build_info",
			Help: "Build information of the royalty distributor",
		},
		[]string{"version", "commit"},
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "royalty_claims_total",
			Help: "Total number of claim calls",
		},
		[]string{"status"}, // "ok", or the rejection reason
	)

	TokensPaidTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "royalty_tokens_paid_total",
			Help: "Total number of (interval, token) payouts recorded",
		},
	)

	PayoutAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "royalty_payout_amount_total",
			Help: "Total funds disbursed, by path",
		},
		[]string{"path"}, // "claim", "withdraw"
	)

	DepositAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "royalty_deposit_amount_total",
			Help: "Total funds deposited",
		},
	)

	AdminOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "royalty_admin_operations_total",
			Help: "Total number of administrative operations",
		},
		[]string{"operation", "status"},
	)

	CurrentInterval = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "royalty_current_interval",
			Help: "Current payout interval",
		},
	)

	SnapshotBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "royalty_snapshot_balance",
			Help: "Fund balance captured by the live snapshot",
		},
	)

	TotalPayout = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "royalty_total_payout",
			Help: "Accumulated payout total, including operator withdrawals",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "royalty_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "royalty_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Label by route pattern so neither path parameters nor unrouted
		// paths grow the label set.
		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
