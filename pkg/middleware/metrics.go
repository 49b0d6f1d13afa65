package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"citizen-reporting-system/pkg/metrics"
)

func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) > 20 || (len(part) > 0 && part[0] >= '0' && part[0] <= '9') {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")

	if len(normalized) > 100 {
		normalized = normalized[:100]
	}
	return normalized
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		metrics.HTTPRequestsInProgress.Inc()
		defer metrics.HTTPRequestsInProgress.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(rw.statusCode)

		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}
