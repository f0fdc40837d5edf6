package middleware

import (
	"net/http"

	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/auth"
)

// CSRFHeader is the request header clients echo the token back in.
const CSRFHeader = "X-CSRF-Token"

// RequireCSRF rejects state-changing requests without a valid CSRF token.
// Safe methods pass through untouched.
func RequireCSRF(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(CSRFHeader)
			if token == "" || !tokens.VerifyCSRF(token) {
				respond.Error(w, r, http.StatusForbidden, "invalid or missing CSRF token", respond.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
