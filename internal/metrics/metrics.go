package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barterhub",
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"result"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barterhub",
		Subsystem: "auth",
		Name:      "token_refreshes_total",
		Help:      "Refresh token exchanges by outcome.",
	}, []string{"result"})

	SessionGuardChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barterhub",
		Subsystem: "auth",
		Name:      "session_guard_checks_total",
		Help:      "Per-request session validations by outcome.",
	}, []string{"result"})

	ThrottleRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barterhub",
		Subsystem: "security",
		Name:      "throttle_rejections_total",
		Help:      "Requests rejected by brute-force or rate-limit throttles.",
	}, []string{"kind"})

	FreshnessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barterhub",
		Subsystem: "profile",
		Name:      "freshness_checks_total",
		Help:      "Conditional profile reads by outcome.",
	}, []string{"result"})
)
