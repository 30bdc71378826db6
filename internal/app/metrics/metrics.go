package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "market_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "market_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	valueTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "ledger",
			Name:      "value_transfers_total",
			Help:      "Total number of value transfers between tokens.",
		},
		[]string{"status"},
	)

	marketSettlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "market",
			Name:      "settlements_total",
			Help:      "Total number of marketplace settlements.",
		},
		[]string{"kind", "status"},
	)

	bidsPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "market",
			Name:      "bids_placed_total",
			Help:      "Total number of accepted auction bids.",
		},
	)

	disbursements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_layer",
			Subsystem: "treasury",
			Name:      "disbursements_total",
			Help:      "Total number of disbursement execution attempts.",
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		valueTransfers,
		marketSettlements,
		bidsPlaced,
		disbursements,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordValueTransfer records the outcome of a ledger value transfer.
func RecordValueTransfer(status string) {
	valueTransfers.WithLabelValues(status).Inc()
}

// RecordSettlement records a marketplace settlement outcome. kind is one of
// "buy", "offer" or "auction".
func RecordSettlement(kind, status string) {
	marketSettlements.WithLabelValues(kind, status).Inc()
}

// RecordBid records an accepted auction bid.
func RecordBid() {
	bidsPlaced.Inc()
}

// RecordDisbursement records a disbursement execution attempt.
func RecordDisbursement(status string) {
	disbursements.WithLabelValues(status).Inc()
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

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource IDs so the path label stays low-cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "tokens", "slots", "auctions", "offers", "listings", "escrow", "vouchers", "disbursements":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		path := "/" + parts[0] + "/:id"
		if len(parts) > 2 {
			path += "/" + parts[2]
		}
		return path
	default:
		return "/" + parts[0]
	}
}
