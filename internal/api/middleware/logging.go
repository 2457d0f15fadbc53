package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/teemow/inboxpilot/internal/logging"
)

// Logger logs every request once it completes and stores a request-scoped
// logger, tagged with the request id, in the request context.
func Logger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLogger := logger.With(slog.String(logging.KeyRequestID, chimw.GetReqID(r.Context())))
			r = r.WithContext(logging.WithContext(r.Context(), reqLogger))

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				reqLogger.Info("request completed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", status),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration(logging.KeyDuration, time.Since(start)),
					slog.String("remote_addr", r.RemoteAddr))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
