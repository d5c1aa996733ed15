package middleware

import (
	"crypto/subtle"
	"net/http"
)

// Internal guards the trusted ingress endpoints the REST layer calls with a
// shared token, compared in constant time.
func Internal(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Internal-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"Missing or invalid internal token"}}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
