// Package metrics exposes prometheus counters for auth outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Signups counts registration attempts by result (ok, conflict, error).
	Signups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinboard",
		Subsystem: "auth",
		Name:      "signups_total",
		Help:      "Signup attempts by result.",
	}, []string{"result"})

	// Logins counts login attempts by result (ok, invalid, rate_limited, error).
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinboard",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	// RefreshRotations counts refresh-secret redemptions by result (ok, invalid, error).
	RefreshRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinboard",
		Subsystem: "auth",
		Name:      "refresh_rotations_total",
		Help:      "Refresh token rotations by result.",
	}, []string{"result"})

	// CSRFRejections counts requests refused by the CSRF guard.
	CSRFRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinboard",
		Subsystem: "http",
		Name:      "csrf_rejections_total",
		Help:      "Requests rejected by the CSRF double-submit check.",
	})
)

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
