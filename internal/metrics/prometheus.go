// Package metrics provides Prometheus metrics collection for the Solvio core
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session lifecycle metrics
var (
	signInAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solvio",
			Name:      "sign_in_attempts_total",
			Help:      "Total number of sign-in attempts",
		},
		[]string{"method", "result"},
	)

	signOutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "solvio",
			Name:      "sign_outs_total",
			Help:      "Total number of sign-outs",
		},
	)

	revalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solvio",
			Name:      "revalidations_total",
			Help:      "Total number of principal revalidation attempts",
		},
		[]string{"result"},
	)

	revalidationsSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "solvio",
			Name:      "revalidations_suppressed_total",
			Help:      "Revalidation triggers suppressed because one was already in flight",
		},
	)
)

// Role workflow metrics
var (
	roleChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solvio",
			Name:      "role_changes_total",
			Help:      "Total number of role mutations",
		},
		[]string{"action", "result"},
	)

	roleChangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solvio",
			Name:      "role_change_requests_total",
			Help:      "Total number of role change request transitions",
		},
		[]string{"transition"},
	)
)

// Result labels
const (
	ResultSuccess    = "success"
	ResultFailure    = "failure"
	ResultDenied     = "denied"
	ResultUnchanged  = "unchanged"
	ResultChanged    = "changed"
	ResultSoftFailed = "soft_failed"
)

// RecordSignInAttempt records a sign-in attempt by method ("password" or
// "external") and result
func RecordSignInAttempt(method, result string) {
	signInAttemptsTotal.WithLabelValues(method, result).Inc()
}

// RecordSignOut records a completed sign-out
func RecordSignOut() {
	signOutsTotal.Inc()
}

// RecordRevalidation records a revalidation attempt outcome
func RecordRevalidation(result string) {
	revalidationsTotal.WithLabelValues(result).Inc()
}

// RecordRevalidationSuppressed records a suppressed concurrent trigger
func RecordRevalidationSuppressed() {
	revalidationsSuppressedTotal.Inc()
}

// RecordRoleChange records a role mutation outcome
func RecordRoleChange(action, result string) {
	roleChangesTotal.WithLabelValues(action, result).Inc()
}

// RecordRequestTransition records a role change request transition
// ("created", "approved", "rejected")
func RecordRequestTransition(transition string) {
	roleChangeRequestsTotal.WithLabelValues(transition).Inc()
}

// Handler returns a Gin handler exposing the Prometheus metrics endpoint
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
