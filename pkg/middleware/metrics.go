// Package middleware holds the searcher's HTTP middleware: request ids,
// Prometheus instrumentation, per-client rate limiting and timeouts.
package middleware

import (
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics instruments next with the HTTP collectors of m, labelled by
// method, route and status code. A nil m disables instrumentation.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := prometheus.Labels{"path": routeLabel(r.URL.Path)}
			h := promhttp.InstrumentHandlerCounter(m.HTTPRequestsTotal.MustCurryWith(route), next)
			h = promhttp.InstrumentHandlerDuration(m.HTTPRequestDuration.MustCurryWith(route), h)
			promhttp.InstrumentHandlerInFlight(m.HTTPRequestsInFlight, h).ServeHTTP(w, r)
		})
	}
}

// routeLabel bounds label cardinality to the served routes.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/health/") || path == "/metrics" {
		return path
	}
	return "other"
}
