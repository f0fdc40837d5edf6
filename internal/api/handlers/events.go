package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/smart-navigator/server/internal/api/bind"
	"github.com/smart-navigator/server/internal/api/middleware"
	"github.com/smart-navigator/server/internal/api/pagination"
	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/domain/events"
	"github.com/smart-navigator/server/internal/domain/users"
	"github.com/smart-navigator/server/internal/metrics"
)

type EventsHandler struct {
	Service *events.Service
	Users   *users.Service
	Binder  *bind.Binder
}

func NewEventsHandler(service *events.Service, userService *users.Service, binder *bind.Binder) *EventsHandler {
	h := &EventsHandler{Service: service, Users: userService, Binder: binder}
	binder.RegisterStructRule(eventLocationRule, events.CreateInput{})
	binder.RegisterStructRule(eventUpdateLocationRule, events.UpdateInput{})
	return h
}

// eventLocationRule enforces exactly one of locationId and externalLocation.
func eventLocationRule(sl validator.StructLevel) {
	input := sl.Current().Interface().(events.CreateInput)
	if (input.LocationID == "") == (input.ExternalLocation == "") {
		sl.ReportError(input.LocationID, "locationId", "LocationID", "location_xor", "")
	}
}

// eventUpdateLocationRule rejects an update that sets both location kinds
// at once; switching kinds is done by setting exactly one.
func eventUpdateLocationRule(sl validator.StructLevel) {
	input := sl.Current().Interface().(events.UpdateInput)
	if input.LocationID != nil && *input.LocationID != "" &&
		input.ExternalLocation != nil && *input.ExternalLocation != "" {
		sl.ReportError(*input.LocationID, "locationId", "LocationID", "location_xor", "")
	}
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var (
		filters events.Filters
		page    pagination.Params
	)
	errs := bind.All(
		func() []respond.FieldError {
			var filterErrs []events.FilterError
			filters, filterErrs = events.ParseFilters(query)
			return filterErrors(filterErrs, func(e events.FilterError) string { return e.Field })
		},
		func() []respond.FieldError {
			var err error
			if page, err = pagination.Parse(query); err != nil {
				return []respond.FieldError{{Field: "page", Message: err.Error(), Type: "query"}}
			}
			return nil
		},
	)
	if errs != nil {
		respond.ValidationFailed(w, r, errs)
		return
	}
	filters.Page = page

	items, total, err := h.Service.List(r.Context(), filters)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "could not list events", err)
		return
	}
	if items == nil {
		items = []events.Event{}
	}
	respond.OK(w, http.StatusOK, "", listResponse{
		Items:      items,
		Pagination: pagination.NewMeta(filters.Page, total),
	})
}

func (h *EventsHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.Service.Upcoming(r.Context(), limit)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "could not list upcoming events", err)
		return
	}
	if items == nil {
		items = []events.Event{}
	}
	respond.OK(w, http.StatusOK, "", map[string]any{"events": items})
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.Get(r.Context(), r.PathValue("id"), middleware.UserULID(r))
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, "event not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not load event", err)
		return
	}
	respond.OK(w, http.StatusOK, "", event)
}

// Recommended matches upcoming events against the caller's interests.
func (h *EventsHandler) Recommended(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetByULID(r.Context(), middleware.UserULID(r))
	if err != nil {
		respond.Error(w, r, http.StatusUnauthorized, "account no longer exists", err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.Service.Recommended(r.Context(), user.Interests, limit)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "could not build recommendations", err)
		return
	}
	if items == nil {
		items = []events.Event{}
	}
	respond.OK(w, http.StatusOK, "", map[string]any{"events": items})
}

func (h *EventsHandler) Register(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.Register(r.Context(), r.PathValue("id"), middleware.UserULID(r))
	if err != nil {
		switch {
		case errors.Is(err, events.ErrNotFound):
			metrics.RegistrationsTotal.WithLabelValues("not_found").Inc()
			respond.Error(w, r, http.StatusNotFound, "event not found", err)
		case errors.Is(err, events.ErrAlreadyRegistered):
			metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			respond.Error(w, r, http.StatusBadRequest, "already registered for this event", err)
		case errors.Is(err, events.ErrEventFull):
			metrics.RegistrationsTotal.WithLabelValues("full").Inc()
			respond.Error(w, r, http.StatusBadRequest, "event has reached capacity", err)
		case errors.Is(err, events.ErrRegistrationClosed):
			metrics.RegistrationsTotal.WithLabelValues("closed").Inc()
			respond.Error(w, r, http.StatusBadRequest, "registration for this event is closed", err)
		case errors.Is(err, events.ErrUnknownAttendee):
			metrics.RegistrationsTotal.WithLabelValues("unknown_attendee").Inc()
			respond.Error(w, r, http.StatusUnauthorized, "account no longer exists", err)
		default:
			respond.Error(w, r, http.StatusInternalServerError, "registration failed", err)
		}
		return
	}
	metrics.RegistrationsTotal.WithLabelValues("registered").Inc()
	respond.OK(w, http.StatusOK, "registered", event)
}

func (h *EventsHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	err := h.Service.Unregister(r.Context(), r.PathValue("id"), middleware.UserULID(r))
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, "event not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not unregister", err)
		return
	}
	respond.OK(w, http.StatusOK, "registration removed", nil)
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input events.CreateInput
	if errs := h.Binder.Body(r, &input); errs != nil {
		respond.ValidationFailed(w, r, errs)
		return
	}

	event, err := h.Service.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, events.ErrLocationInvalid) {
			respond.ValidationFailed(w, r, []respond.FieldError{
				{Field: "locationId", Message: "must reference an existing location", Type: "reference"},
			})
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not create event", err)
		return
	}
	respond.OK(w, http.StatusCreated, "event created", event)
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input events.UpdateInput
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

	event, err := h.Service.Update(r.Context(), r.PathValue("id"), input)
	if err != nil {
		switch {
		case errors.Is(err, events.ErrNotFound):
			respond.Error(w, r, http.StatusNotFound, "event not found", err)
		case errors.Is(err, events.ErrLocationInvalid):
			respond.ValidationFailed(w, r, []respond.FieldError{
				{Field: "locationId", Message: "must reference an existing location", Type: "reference"},
			})
		default:
			respond.Error(w, r, http.StatusInternalServerError, "could not update event", err)
		}
		return
	}
	respond.OK(w, http.StatusOK, "event updated", event)
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, events.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, "event not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not delete event", err)
		return
	}
	respond.OK(w, http.StatusOK, "event deleted", nil)
}
