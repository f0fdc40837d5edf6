package handlers

import (
	"errors"
	"net/http"

	"github.com/smart-navigator/server/internal/api/bind"
	"github.com/smart-navigator/server/internal/api/pagination"
	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/domain/locations"
	"github.com/smart-navigator/server/internal/metrics"
)

// csvFieldName is the multipart form field carrying the import file.
const csvFieldName = "csv"

type LocationsHandler struct {
	Service *locations.Service
	Binder  *bind.Binder

	MaxCSVBytes int64
}

func NewLocationsHandler(service *locations.Service, binder *bind.Binder, maxCSVBytes int64) *LocationsHandler {
	return &LocationsHandler{Service: service, Binder: binder, MaxCSVBytes: maxCSVBytes}
}

type listResponse struct {
	Items      any             `json:"items"`
	Pagination pagination.Meta `json:"pagination"`
}

func filterErrors[T interface{ Error() string }](errs []T, field func(T) string) []respond.FieldError {
	out := make([]respond.FieldError, 0, len(errs))
	for _, err := range errs {
		out = append(out, respond.FieldError{Field: field(err), Message: err.Error(), Type: "query"})
	}
	return out
}

func (h *LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// Filter and pagination parameters are independent; validate both
	// parts concurrently and report every violation at once.
	var (
		filters locations.Filters
		page    pagination.Params
	)
	errs := bind.All(
		func() []respond.FieldError {
			var filterErrs []locations.FilterError
			filters, filterErrs = locations.ParseFilters(query)
			return filterErrors(filterErrs, func(e locations.FilterError) string { return e.Field })
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
		respond.Error(w, r, http.StatusInternalServerError, "could not list locations", err)
		return
	}
	if items == nil {
		items = []locations.Location{}
	}
	respond.OK(w, http.StatusOK, "", listResponse{
		Items:      items,
		Pagination: pagination.NewMeta(filters.Page, total),
	})
}

func (h *LocationsHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	query, errs := locations.ParseNearby(r.URL.Query())
	if errs != nil {
		respond.ValidationFailed(w, r, filterErrors(errs, func(e locations.FilterError) string { return e.Field }))
		return
	}

	items, err := h.Service.Nearby(r.Context(), query)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "could not search nearby", err)
		return
	}
	if items == nil {
		items = []locations.Location{}
	}
	respond.OK(w, http.StatusOK, "", map[string]any{"locations": items})
}

func (h *LocationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	loc, err := h.Service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, locations.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, "location not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not load location", err)
		return
	}
	respond.OK(w, http.StatusOK, "", loc)
}

func (h *LocationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input locations.CreateInput
	if errs := h.Binder.Body(r, &input); errs != nil {
		respond.ValidationFailed(w, r, errs)
		return
	}

	loc, err := h.Service.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, locations.ErrBuildingInvalid) {
			respond.ValidationFailed(w, r, []respond.FieldError{
				{Field: "buildingId", Message: "must reference an existing building", Type: "reference"},
			})
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not create location", err)
		return
	}
	respond.OK(w, http.StatusCreated, "location created", loc)
}

func (h *LocationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input locations.UpdateInput
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

	loc, err := h.Service.Update(r.Context(), r.PathValue("id"), input)
	if err != nil {
		switch {
		case errors.Is(err, locations.ErrNotFound):
			respond.Error(w, r, http.StatusNotFound, "location not found", err)
		case errors.Is(err, locations.ErrBuildingInvalid):
			respond.ValidationFailed(w, r, []respond.FieldError{
				{Field: "buildingId", Message: "must reference an existing building", Type: "reference"},
			})
		default:
			respond.Error(w, r, http.StatusInternalServerError, "could not update location", err)
		}
		return
	}
	respond.OK(w, http.StatusOK, "location updated", loc)
}

func (h *LocationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, locations.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, "location not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "could not delete location", err)
		return
	}
	respond.OK(w, http.StatusOK, "location deleted", nil)
}

// Import accepts a multipart CSV upload. The batch is all-or-nothing: any
// invalid row rejects the whole file and reports every failure.
func (h *LocationsHandler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.MaxCSVBytes); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid multipart upload", err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile(csvFieldName)
	if err != nil {
		respond.ValidationFailed(w, r, []respond.FieldError{
			{Field: csvFieldName, Message: "csv file is required", Type: "required"},
		})
		return
	}
	defer file.Close()

	count, err := h.Service.Import(r.Context(), file)
	if err != nil {
		var importErr *locations.ImportError
		if errors.As(err, &importErr) {
			metrics.CSVImportRows.WithLabelValues("rejected").Add(float64(len(importErr.Rows)))
			fieldErrors := make([]respond.FieldError, 0, len(importErr.Rows))
			for _, rowErr := range importErr.Rows {
				fieldErrors = append(fieldErrors, respond.FieldError{
					Field:   rowErr.Field,
					Message: rowErr.Error(),
					Type:    "csv",
				})
			}
			respond.ValidationFailed(w, r, fieldErrors)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, "import failed", err)
		return
	}

	metrics.CSVImportRows.WithLabelValues("imported").Add(float64(count))
	respond.OK(w, http.StatusCreated, "import complete", map[string]int{"imported": count})
}
