package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/auth"
)

type sessionKey string

const sessionClaimsKey sessionKey = "sessionClaims"

func withSession(ctx context.Context, claims *auth.SessionClaims) context.Context {
	return context.WithValue(ctx, sessionClaimsKey, claims)
}

// Session returns the authenticated session claims, or nil on public
// routes and unauthenticated requests.
func Session(r *http.Request) *auth.SessionClaims {
	if claims, ok := r.Context().Value(sessionClaimsKey).(*auth.SessionClaims); ok {
		return claims
	}
	return nil
}

// UserULID returns the authenticated user's ID, or "" when anonymous.
func UserULID(r *http.Request) string {
	if claims := Session(r); claims != nil {
		return claims.Subject
	}
	return ""
}

func sessionFromCookie(r *http.Request, tokens *auth.TokenService, cookieName string) (*auth.SessionClaims, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, auth.ErrMissingToken
	}
	return tokens.VerifySession(cookie.Value)
}

// RequireAuth rejects requests without a valid session cookie.
func RequireAuth(tokens *auth.TokenService, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := sessionFromCookie(r, tokens, cookieName)
			if err != nil {
				message := "authentication required"
				if err == auth.ErrTokenExpired {
					message = "session expired, please log in again"
				}
				respond.Error(w, r, http.StatusUnauthorized, message, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches session claims when a valid cookie is present and
// lets the request through either way.
func OptionalAuth(tokens *auth.TokenService, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := sessionFromCookie(r, tokens, cookieName)
			if err == nil {
				r = r.WithContext(withSession(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects authenticated non-admin users with 403. Must run
// after RequireAuth.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := Session(r)
			if claims == nil {
				respond.Error(w, r, http.StatusUnauthorized, "authentication required", auth.ErrMissingToken)
				return
			}
			if !auth.IsAdmin(claims.Role) {
				respond.Error(w, r, http.StatusForbidden, "admin access required", respond.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
