package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/smart-navigator/server/internal/api/bind"
	"github.com/smart-navigator/server/internal/api/middleware"
	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/auth"
	"github.com/smart-navigator/server/internal/domain/users"
	"github.com/smart-navigator/server/internal/metrics"
)

// RememberMeExpiry extends the session cookie for "remember me" logins.
const RememberMeExpiry = 30 * 24 * time.Hour

type AuthHandler struct {
	Users         *users.Service
	Tokens        *auth.TokenService
	Binder        *bind.Binder
	CookieName    string
	SessionExpiry time.Duration
	SecureCookies bool
}

func NewAuthHandler(userService *users.Service, tokens *auth.TokenService, binder *bind.Binder, cookieName string, sessionExpiry time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		Users:         userService,
		Tokens:        tokens,
		Binder:        binder,
		CookieName:    cookieName,
		SessionExpiry: sessionExpiry,
		SecureCookies: secureCookies,
	}
}

type sessionResponse struct {
	User      *users.User `json:"user"`
	CSRFToken string      `json:"csrfToken"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input users.RegisterInput
	if errs := h.Binder.Body(r, &input); errs != nil {
		respond.ValidationFailed(w, r, errs)
		return
	}

	user, err := h.Users.Register(r.Context(), input)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			respond.Error(w, r, http.StatusBadRequest, "email is already registered", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "registration failed", err)
		return
	}

	if !h.startSession(w, r, user, 0) {
		return
	}
	csrfToken, err := h.Tokens.IssueCSRF()
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "registration failed", err)
		return
	}
	respond.OK(w, http.StatusCreated, "registration successful", sessionResponse{User: user, CSRFToken: csrfToken})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input users.LoginInput
	if errs := h.Binder.Body(r, &input); errs != nil {
		respond.ValidationFailed(w, r, errs)
		return
	}

	user, err := h.Users.Authenticate(r.Context(), input)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		respond.Error(w, r, http.StatusUnauthorized, "invalid email or password", err)
		return
	}

	var expiry time.Duration
	if input.RememberMe {
		expiry = RememberMeExpiry
	}
	if !h.startSession(w, r, user, expiry) {
		return
	}
	csrfToken, err := h.Tokens.IssueCSRF()
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "login failed", err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	respond.OK(w, http.StatusOK, "login successful", sessionResponse{User: user, CSRFToken: csrfToken})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.ClearSessionCookie(w)
	respond.OK(w, http.StatusOK, "logged out", nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetByULID(r.Context(), middleware.UserULID(r))
	if err != nil {
		h.ClearSessionCookie(w)
		respond.Error(w, r, http.StatusUnauthorized, "account no longer exists", err)
		return
	}
	respond.OK(w, http.StatusOK, "", user)
}

func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.Tokens.IssueCSRF()
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "could not issue token", err)
		return
	}
	respond.OK(w, http.StatusOK, "", map[string]string{"csrfToken": token})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var input users.ChangePasswordInput
	if errs := h.Binder.Body(r, &input); errs != nil {
		respond.ValidationFailed(w, r, errs)
		return
	}

	err := h.Users.ChangePassword(r.Context(), middleware.UserULID(r), input)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidCredentials):
			respond.Error(w, r, http.StatusUnauthorized, "current password is incorrect", err)
		case errors.Is(err, users.ErrNotFound):
			respond.Error(w, r, http.StatusNotFound, "account not found", err)
		default:
			respond.Error(w, r, http.StatusInternalServerError, "could not change password", err)
		}
		return
	}
	respond.OK(w, http.StatusOK, "password changed", nil)
}

// startSession issues a session token and sets the auth cookie; on failure
// it writes the error response itself and reports false.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *users.User, expiry time.Duration) bool {
	token, err := h.Tokens.IssueSession(user.ULID, user.Email, user.Role, expiry)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "could not start session", err)
		return false
	}

	maxAge := h.SessionExpiry
	if expiry > 0 {
		maxAge = expiry
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func (h *AuthHandler) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
