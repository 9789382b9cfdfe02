package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rewear",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewear",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rewear",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewear",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Ledger transactions by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	ledgerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewear",
			Subsystem: "ledger",
			Name:      "retries_total",
			Help:      "Ledger transactions retried after a transient store conflict.",
		},
		[]string{"op"},
	)

	ledgerPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewear",
			Subsystem: "ledger",
			Name:      "points_total",
			Help:      "Points moved by committed ledger transactions.",
		},
		[]string{"direction"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOps,
		ledgerRetries,
		ledgerPoints,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveLedger counts a finished ledger transaction.
func ObserveLedger(op, outcome string) {
	ledgerOps.WithLabelValues(op, outcome).Inc()
}

// ObserveLedgerRetry counts one retry of op.
func ObserveLedgerRetry(op string) {
	ledgerRetries.WithLabelValues(op).Inc()
}

// AddPoints records points credited or debited by a committed transaction.
func AddPoints(direction string, n int) {
	ledgerPoints.WithLabelValues(direction).Add(float64(n))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeLabel(r.URL.Path)
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses numeric path segments so item IDs do not explode
// label cardinality.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/uploads/") {
		return "/uploads/{key}"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p != "" && isDigits(p) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}
