package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Face comparison
	CompareDuration *prometheus.HistogramVec
	CompareResults  *prometheus.CounterVec

	// Blob deletion queue
	DeletionQueueDepth prometheus.Gauge
	DeletionResults    *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "faceauth",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "faceauth",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				// Sane initial defaults
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "faceauth",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "faceauth",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "faceauth",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		CompareDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "faceauth",
				Subsystem: "compare",
				Name:      "duration_seconds",
				Help:      "Face comparator round-trip latency by outcome.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"result"}, // result=match|mismatch|no_face|error
		),
		CompareResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "faceauth",
				Subsystem: "compare",
				Name:      "results_total",
				Help:      "Face comparison outcomes.",
			},
			[]string{"result"},
		),
		DeletionQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "faceauth",
				Subsystem: "deletions",
				Name:      "queue_depth",
				Help:      "Blob deletions waiting in the background queue.",
			},
		),
		DeletionResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "faceauth",
				Subsystem: "deletions",
				Name:      "results_total",
				Help:      "Background blob deletion outcomes.",
			},
			[]string{"result"}, // result=done|retry|gave_up|dropped
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.CompareDuration, p.CompareResults,
		p.DeletionQueueDepth, p.DeletionResults,
	)

	return p
}

func (p *Prom) ObserveCompare(result string, secs float64) {
	p.CompareResults.WithLabelValues(result).Inc()
	p.CompareDuration.WithLabelValues(result).Observe(secs)
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
