package notify

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware gates the operator HTTP surface behind a single shared
// bearer token (spec §1: "user authentication beyond a thin bearer-token
// gate" is explicitly out of scope), the same Authorization-header
// convention services/user.go's AuthMiddleware uses for Firebase ID tokens.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization Header", http.StatusUnauthorized)
			return
		}
		presented := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			http.Error(w, "Invalid Token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
