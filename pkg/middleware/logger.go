package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger logs one line per request with its trace id.
func Logger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			entry := log.WithFields(logrus.Fields{
				"trace_id": GetTraceID(r),
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rw.statusCode,
				"duration": time.Since(start).String(),
			})
			if rw.statusCode >= http.StatusInternalServerError {
				entry.Error("HTTP Request")
				return
			}
			entry.Info("HTTP Request")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush keeps event streams working behind the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
