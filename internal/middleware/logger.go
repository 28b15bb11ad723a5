package middleware

import (
	"net/http"
	"time"

	"app/internal/logger"
)

// LoggerMiddleware logs incoming HTTP requests with their duration.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		log := logger.New()
		log.Debug().
			Str("method", r.Method).
			Str("uri", r.URL.RequestURI()).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}
