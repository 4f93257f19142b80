package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RequireOperatorKey guards mutating endpoints with a static operator API
// key. Only the bcrypt hash is configured on the server; an empty hash
// disables the check for local development.
func RequireOperatorKey(keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			key, ok := bearerToken(r)
			if !ok || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
				logger.WarnContext(r.Context(), "operator key rejected",
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
				)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
