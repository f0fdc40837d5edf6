package handlers

import (
	"errors"
	"net/http"

	"github.com/smart-navigator/server/internal/api/bind"
	"github.com/smart-navigator/server/internal/api/middleware"
	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/domain/events"
	"github.com/smart-navigator/server/internal/domain/users"
)

type UsersHandler struct {
	Users  *users.Service
	Events *events.Service
	Binder *bind.Binder

	// clearCookie removes the session cookie after account deletion.
	ClearCookie func(http.ResponseWriter)
}

func NewUsersHandler(userService *users.Service, eventService *events.Service, binder *bind.Binder, clearCookie func(http.ResponseWriter)) *UsersHandler {
	return &UsersHandler{Users: userService, Events: eventService, Binder: binder, ClearCookie: clearCookie}
}

func (h *UsersHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetByULID(r.Context(), middleware.UserULID(r))
	if err != nil {
		respond.Error(w, r, http.StatusNotFound, "account not found", err)
		return
	}
	respond.OK(w, http.StatusOK, "", user)
}

func (h *UsersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var input users.UpdateProfileInput
	if errs := h.Binder.Body(r, &input); errs != nil {
		respond.ValidationFailed(w, r, errs)
		return
	}
	if input.IsEmpty() {
		respond.ValidationFailed(w, r, []respond.FieldError{
			{Field: "body", Message: "at least one field must be provided", Type: "required"},
		})
		return
	}

	user, err := h.Users.UpdateProfile(r.Context(), middleware.UserULID(r), input)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, "account not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not update profile", err)
		return
	}
	respond.OK(w, http.StatusOK, "profile updated", user)
}

// DeleteProfile removes the account; attendee records cascade away with it
// and the session cookie is cleared.
func (h *UsersHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Delete(r.Context(), middleware.UserULID(r)); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, "account not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not delete account", err)
		return
	}
	if h.ClearCookie != nil {
		h.ClearCookie(w)
	}
	respond.OK(w, http.StatusOK, "account deleted", nil)
}

// MyEvents lists the events the user has registered for, soonest first.
// ?upcoming=false includes past events.
func (h *UsersHandler) MyEvents(w http.ResponseWriter, r *http.Request) {
	upcomingOnly := r.URL.Query().Get("upcoming") != "false"

	items, err := h.Events.RegisteredFor(r.Context(), middleware.UserULID(r), upcomingOnly)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "could not list events", err)
		return
	}
	if items == nil {
		items = []events.Event{}
	}
	respond.OK(w, http.StatusOK, "", map[string]any{"events": items})
}
