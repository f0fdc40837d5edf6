// Package events holds the campus event domain: scheduling, discovery
// filters and capacity-bounded registration.
package events

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/smart-navigator/server/internal/api/pagination"
)

var (
	ErrNotFound           = errors.New("event not found")
	ErrAlreadyRegistered  = errors.New("already registered for this event")
	ErrEventFull          = errors.New("event has reached capacity")
	ErrRegistrationClosed = errors.New("registration for this event is closed")
	ErrLocationInvalid    = errors.New("locationId does not reference a known location")
	ErrUnknownAttendee    = errors.New("attendee account no longer exists")
)

type Category string

const (
	CategoryAcademic   Category = "academic"
	CategoryCultural   Category = "cultural"
	CategorySports     Category = "sports"
	CategoryWorkshop   Category = "workshop"
	CategorySeminar    Category = "seminar"
	CategoryConference Category = "conference"
	CategorySocial     Category = "social"
	CategoryOther      Category = "other"
)

var Categories = []Category{
	CategoryAcademic, CategoryCultural, CategorySports, CategoryWorkshop,
	CategorySeminar, CategoryConference, CategorySocial, CategoryOther,
}

func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	return c, slices.Contains(Categories, c)
}

// DefaultCapacity applies when an event is created without one.
const DefaultCapacity = 50

type Organizer struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Organization string `json:"organization,omitempty"`
}

type Event struct {
	ID                   string     `json:"-"`
	ULID                 string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	Category             Category   `json:"category"`
	StartTime            time.Time  `json:"dateTime"`
	EndTime              *time.Time `json:"endTime,omitempty"`
	LocationULID         *string    `json:"locationId,omitempty"`
	LocationName         string     `json:"locationName,omitempty"`
	ExternalLocation     string     `json:"externalLocation,omitempty"`
	Capacity             int        `json:"capacity"`
	AttendeeCount        int        `json:"attendeeCount"`
	AvailableSpots       int        `json:"availableSpots"`
	RegistrationRequired bool       `json:"registrationRequired"`
	RegistrationDeadline *time.Time `json:"registrationDeadline,omitempty"`
	Tags                 []string   `json:"tags"`
	Organizer            Organizer  `json:"organizer"`
	IsPublic             bool       `json:"isPublic"`
	RequiresApproval     bool       `json:"requiresApproval"`
	IsRegistered         *bool      `json:"isRegistered,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// RegistrationOpen reports whether a new registration is accepted at now.
// The deadline closes registration when set; otherwise the event start does.
func (e *Event) RegistrationOpen(now time.Time) bool {
	if e.RegistrationDeadline != nil {
		return now.Before(*e.RegistrationDeadline)
	}
	return now.Before(e.StartTime)
}

type OrganizerInput struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Email        string `json:"email" validate:"required,email,max=100"`
	Phone        string `json:"phone" validate:"omitempty,max=30"`
	Organization string `json:"organization" validate:"omitempty,max=100"`
}

// CreateInput carries a new event. Exactly one of LocationID and
// ExternalLocation must be set; the rule is registered as a struct-level
// validation.
type CreateInput struct {
	Title                string         `json:"title" validate:"required,min=3,max=150"`
	Description          string         `json:"description" validate:"max=2000"`
	Category             string         `json:"category" validate:"required,oneof=academic cultural sports workshop seminar conference social other"`
	StartTime            time.Time      `json:"dateTime" validate:"required,future"`
	EndTime              *time.Time     `json:"endTime" validate:"omitempty,gtfield=StartTime"`
	LocationID           string         `json:"locationId" validate:"omitempty,len=26"`
	ExternalLocation     string         `json:"externalLocation" validate:"omitempty,min=2,max=200"`
	Capacity             *int           `json:"capacity" validate:"omitempty,min=1,max=100000"`
	RegistrationRequired *bool          `json:"registrationRequired"`
	RegistrationDeadline *time.Time     `json:"registrationDeadline" validate:"omitempty,ltfield=StartTime"`
	Tags                 []string       `json:"tags" validate:"max=10,dive,min=1,max=30"`
	Organizer            OrganizerInput `json:"organizer" validate:"required"`
	IsPublic             *bool          `json:"isPublic"`
	RequiresApproval     *bool          `json:"requiresApproval"`
}

type UpdateInput struct {
	Title                *string         `json:"title" validate:"omitempty,min=3,max=150"`
	Description          *string         `json:"description" validate:"omitempty,max=2000"`
	Category             *string         `json:"category" validate:"omitempty,oneof=academic cultural sports workshop seminar conference social other"`
	StartTime            *time.Time      `json:"dateTime" validate:"omitempty,future"`
	EndTime              *time.Time      `json:"endTime"`
	LocationID           *string         `json:"locationId" validate:"omitempty,len=26"`
	ExternalLocation     *string         `json:"externalLocation" validate:"omitempty,min=2,max=200"`
	Capacity             *int            `json:"capacity" validate:"omitempty,min=1,max=100000"`
	RegistrationRequired *bool           `json:"registrationRequired"`
	RegistrationDeadline *time.Time      `json:"registrationDeadline"`
	Tags                 *[]string       `json:"tags" validate:"omitempty,max=10,dive,min=1,max=30"`
	Organizer            *OrganizerInput `json:"organizer"`
	IsPublic             *bool           `json:"isPublic"`
	RequiresApproval     *bool           `json:"requiresApproval"`
}

func (i UpdateInput) IsEmpty() bool {
	return i.Title == nil && i.Description == nil && i.Category == nil &&
		i.StartTime == nil && i.EndTime == nil && i.LocationID == nil &&
		i.ExternalLocation == nil && i.Capacity == nil &&
		i.RegistrationRequired == nil && i.RegistrationDeadline == nil &&
		i.Tags == nil && i.Organizer == nil && i.IsPublic == nil &&
		i.RequiresApproval == nil
}

type UpdateParams struct {
	Title                *string
	Description          *string
	Category             *Category
	StartTime            *time.Time
	EndTime              *time.Time
	LocationID           *string
	ExternalLocation     *string
	Capacity             *int
	RegistrationRequired *bool
	RegistrationDeadline *time.Time
	Tags                 *[]string
	Organizer            *Organizer
	IsPublic             *bool
	RequiresApproval     *bool
}

type Filters struct {
	Search       string
	Category     string
	Tags         []string
	LocationULID string
	From         *time.Time
	To           *time.Time
	Upcoming     bool
	SortBy       string
	SortOrder    string
	Page         pagination.Params
}

type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	return e.Field + ": " + e.Message
}

var eventSortFields = map[string]string{
	"dateTime":  "start_time",
	"title":     "title",
	"createdAt": "created_at",
}

// ParseFilters builds event list filters from query parameters, collecting
// every invalid parameter instead of stopping at the first.
func ParseFilters(q url.Values) (Filters, []FilterError) {
	var errs []FilterError
	f := Filters{
		Search:    strings.TrimSpace(q.Get("search")),
		SortBy:    "dateTime",
		SortOrder: "asc",
	}

	if raw := q.Get("category"); raw != "" {
		c, ok := ParseCategory(raw)
		if !ok {
			errs = append(errs, FilterError{Field: "category", Message: "unknown event category"})
		} else {
			f.Category = string(c)
		}
	}
	if raw := q.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if trimmed := strings.ToLower(strings.TrimSpace(tag)); trimmed != "" {
				f.Tags = append(f.Tags, trimmed)
			}
		}
	}
	if raw := q.Get("locationId"); raw != "" {
		f.LocationULID = strings.TrimSpace(raw)
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errs = append(errs, FilterError{Field: "from", Message: "must be an RFC 3339 timestamp"})
		} else {
			f.From = &t
		}
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errs = append(errs, FilterError{Field: "to", Message: "must be an RFC 3339 timestamp"})
		} else {
			f.To = &t
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		errs = append(errs, FilterError{Field: "to", Message: "must not be before from"})
	}
	if raw := q.Get("upcoming"); raw != "" {
		switch raw {
		case "true":
			f.Upcoming = true
		case "false":
		default:
			errs = append(errs, FilterError{Field: "upcoming", Message: "must be true or false"})
		}
	}

	if raw := q.Get("sortBy"); raw != "" {
		if _, ok := eventSortFields[raw]; !ok {
			errs = append(errs, FilterError{Field: "sortBy", Message: "must be one of: dateTime, title, createdAt"})
		} else {
			f.SortBy = raw
		}
	}
	if raw := q.Get("sortOrder"); raw != "" {
		if raw != "asc" && raw != "desc" {
			errs = append(errs, FilterError{Field: "sortOrder", Message: "must be asc or desc"})
		} else {
			f.SortOrder = raw
		}
	}

	return f, errs
}

func (f Filters) SortColumn() string {
	if col, ok := eventSortFields[f.SortBy]; ok {
		return col
	}
	return "start_time"
}

type Repository interface {
	Create(ctx context.Context, event *Event) error
	GetByULID(ctx context.Context, ulid string) (*Event, error)
	List(ctx context.Context, f Filters) ([]Event, int, error)
	Update(ctx context.Context, ulid string, params UpdateParams) (*Event, error)
	Delete(ctx context.Context, ulid string) error

	// Register appends an attendee. The capacity check and the insert are a
	// single atomic statement; concurrent registrations can never exceed
	// capacity. Returns ErrAlreadyRegistered, ErrEventFull or
	// ErrUnknownAttendee.
	Register(ctx context.Context, eventULID, userULID string) error
	// Unregister removes an attendee; removing an absent registration is a
	// no-op success.
	Unregister(ctx context.Context, eventULID, userULID string) error
	IsRegistered(ctx context.Context, eventULID, userULID string) (bool, error)
	ListRegisteredByUser(ctx context.Context, userULID string, upcomingOnly bool) ([]Event, error)

	// Recommended returns upcoming public events whose tags overlap the
	// given interests, soonest first.
	Recommended(ctx context.Context, interests []string, limit int) ([]Event, error)
	Upcoming(ctx context.Context, limit int) ([]Event, error)
}
