package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"gitlab.com/nevasik7/alerting/logger"
)

type LoggingMiddleware struct {
	Log logger.Logger
}

func NewLogging(log logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{Log: log}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		entry := m.Log.WithFields(map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"size":       ww.BytesWritten(),
			"dur_ms":     time.Since(start).Milliseconds(),
			"ip":         remoteAddrIP(r.RemoteAddr),
			"request_id": middleware.GetReqID(r.Context()),
		})

		if status >= http.StatusInternalServerError {
			entry.Warnf("http_request %s %s", r.Method, r.URL.Path)
			return
		}
		entry.Debugf("http_request %s %s", r.Method, r.URL.Path)
	})
}
