package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bharatchain_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	bcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bharatchain_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	bcLedgerWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bharatchain_ledger_writes_total",
		Help: "Total chain block writes by block type and result.",
	}, []string{"type", "result"})

	bcLedgerWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bharatchain_ledger_write_duration_seconds",
		Help:    "Chain block write latency in seconds.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 30},
	}, []string{"type"})

	bcConsentOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bharatchain_consent_operations_total",
		Help: "Total consent grants and revocations by result.",
	}, []string{"op", "result"})

	bcPermissionDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bharatchain_permission_decisions_total",
		Help: "Total permission checks by requester tier, module, and outcome.",
	}, []string{"tier", "module", "outcome"})

	bcRecordOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bharatchain_record_operations_total",
		Help: "Total record reads and writes by module and result.",
	}, []string{"module", "op", "result"})

	bcHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bharatchain_health_checks_total",
		Help: "Total dependency health probes by target and result.",
	}, []string{"target", "result"})

	bcDependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bharatchain_dependency_up",
		Help: "1 if the last probe of the dependency succeeded, else 0.",
	}, []string{"target"})

	bcWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bharatchain_webhook_deliveries_total",
		Help: "Total audit webhook delivery attempts by result.",
	}, []string{"result"})
)

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		bcRequestsTotal.WithLabelValues(method, path, status).Inc()
		bcRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerWrite is a ledger.WriteObserver.
func RecordLedgerWrite(blockType string, elapsed time.Duration, err error) {
	res := result(err == nil)
	if errors.Is(err, ledger.ErrUnavailable) {
		res = "unavailable"
	}
	bcLedgerWritesTotal.WithLabelValues(blockType, res).Inc()
	bcLedgerWriteDuration.WithLabelValues(blockType).Observe(elapsed.Seconds())
}

// RecordConsentOp records a grant or revoke attempt.
func RecordConsentOp(op string, success bool) {
	bcConsentOpsTotal.WithLabelValues(op, result(success)).Inc()
}

// RecordPermissionDecision records one Authorize outcome.
func RecordPermissionDecision(d consent.Decision) {
	outcome := "denied"
	if d.Allowed {
		outcome = "allowed"
	}
	bcPermissionDecisionsTotal.WithLabelValues(string(d.Tier), string(d.Module), outcome).Inc()
}

// RecordRecordOp records a record read or write.
func RecordRecordOp(module, op string, success bool) {
	bcRecordOpsTotal.WithLabelValues(module, op, result(success)).Inc()
}

// RecordHealthCheck records a dependency probe result.
func RecordHealthCheck(target string, success bool) {
	bcHealthChecksTotal.WithLabelValues(target, result(success)).Inc()
	up := 0.0
	if success {
		up = 1
	}
	bcDependencyUp.WithLabelValues(target).Set(up)
}

// RecordWebhookDelivery records one webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	bcWebhookDeliveriesTotal.WithLabelValues(result(success)).Inc()
}
