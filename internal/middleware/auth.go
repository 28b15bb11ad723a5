package middleware

import (
	"context"
	"net/http"
	"strings"

	"app/internal/logger"
	"app/internal/util"
)

// Injected key type to avoid context collisions
type contextKey string

const UserContextKey = contextKey("user")

// UserID extracts the authenticated user id stored by AuthMiddleware.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserContextKey).(int64)
	return id, ok
}

// AuthMiddleware validates the access token from the Authorization header or
// the accessToken cookie and injects the user id into the request context.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.New()
			tokenString := bearerToken(r)
			if tokenString == "" {
				if cookie, err := r.Cookie("accessToken"); err == nil {
					tokenString = cookie.Value
				}
			}
			if tokenString == "" {
				http.Error(w, "missing access token", http.StatusUnauthorized)
				return
			}
			claims, err := util.ValidateJWT(tokenString, jwtSecret)
			if err != nil {
				log.Debug().Err(err).Msg("Rejected access token")
				http.Error(w, "invalid access token", http.StatusUnauthorized)
				return
			}
			userID, err := util.UserIDFromClaims(claims)
			if err != nil {
				log.Debug().Err(err).Msg("Rejected access token subject")
				http.Error(w, "invalid access token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
