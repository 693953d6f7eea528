// Package metrics exposes Prometheus instrumentation for the joint keeper.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts lifecycle operations by outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joint_operations_total",
		Help: "Total lifecycle operations executed",
	}, []string{"instance", "operation", "result"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "joint_operation_duration_seconds",
		Help:    "Lifecycle operation duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"instance", "operation"})

	// PerformanceRatio is the latest ratio of each leg, 10000 meaning break-even.
	PerformanceRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "joint_performance_ratio_bps",
		Help: "Current amount over contributed amount per leg, in basis points",
	}, []string{"instance", "leg", "phase"})

	// ProjectedAssets is the latest projection in human units.
	ProjectedAssets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "joint_projected_assets",
		Help: "Projected amount a full harvest would return now, per leg",
	}, []string{"instance", "leg"})

	HedgeOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "joint_hedge_open",
		Help: "1 when the instance holds an open hedge",
	}, []string{"instance"})

	RollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joint_rollbacks_total",
		Help: "Failed operations rolled back, by mechanism",
	}, []string{"instance", "mechanism"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joint_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "joint_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveOperation records the outcome and duration of one operation.
func ObserveOperation(instance, operation string, started time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	OperationsTotal.WithLabelValues(instance, operation, result).Inc()
	OperationDuration.WithLabelValues(instance, operation).Observe(time.Since(started).Seconds())
}

func SetHedgeOpen(instance string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	HedgeOpen.WithLabelValues(instance).Set(v)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
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
