package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer identifies tokens minted by this server.
	Issuer = "smart-navigator"
	// Audience identifies session tokens intended for end users.
	Audience = "smart-navigator-users"

	// CSRFExpiry bounds the lifetime of CSRF tokens independently of sessions.
	CSRFExpiry = time.Hour

	csrfTokenType = "csrf"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// SessionClaims are the claims embedded in a session token.
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type csrfClaims struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"ts"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies session and CSRF tokens. Session and CSRF
// signing keys are derived independently from the master secret, so a leaked
// CSRF token can never be replayed as a session credential.
type TokenService struct {
	sessionKey []byte
	csrfKey    []byte
	expiry     time.Duration
}

func NewTokenService(masterSecret string, sessionExpiry time.Duration) (*TokenService, error) {
	sessionKey, err := DeriveSessionKey([]byte(masterSecret))
	if err != nil {
		return nil, err
	}
	csrfKey, err := DeriveCSRFKey([]byte(masterSecret))
	if err != nil {
		return nil, err
	}
	return &TokenService{
		sessionKey: sessionKey,
		csrfKey:    csrfKey,
		expiry:     sessionExpiry,
	}, nil
}

// IssueSession mints a signed session token for the given user. The expiry
// override supports "remember me" logins; pass zero for the default.
func (s *TokenService) IssueSession(userID, email, role string, expiry time.Duration) (string, error) {
	if userID == "" || email == "" || role == "" {
		return "", ErrInvalidToken
	}
	if expiry <= 0 {
		expiry = s.expiry
	}

	now := time.Now()
	claims := &SessionClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.sessionKey)
}

// VerifySession validates signature, issuer, audience and expiry. Expired
// tokens are reported distinctly from malformed or forged ones.
func (s *TokenService) VerifySession(tokenString string) (*SessionClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.sessionKey, nil
	}, jwt.WithIssuer(Issuer), jwt.WithAudience(Audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueCSRF mints a short-lived CSRF token. CSRF tokens are independent of
// any session: they prove only that the client recently talked to us.
func (s *TokenService) IssueCSRF() (string, error) {
	now := time.Now()
	claims := &csrfClaims{
		Type:      csrfTokenType,
		Timestamp: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(CSRFExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.csrfKey)
}

// VerifyCSRF reports whether token is a currently valid CSRF token. Every
// failure mode (missing, malformed, expired, wrong key, wrong type) returns
// false; verification never propagates an error.
func (s *TokenService) VerifyCSRF(tokenString string) bool {
	if strings.TrimSpace(tokenString) == "" {
		return false
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &csrfClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.csrfKey, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return false
	}

	claims, ok := parsed.Claims.(*csrfClaims)
	if !ok || !parsed.Valid {
		return false
	}
	return claims.Type == csrfTokenType && claims.Timestamp > 0
}
