// Package locations holds the campus location domain: buildings, rooms and
// points of interest, their filters and the CSV bulk import format.
package locations

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/smart-navigator/server/internal/api/pagination"
)

var (
	ErrNotFound        = errors.New("location not found")
	ErrBuildingInvalid = errors.New("buildingId does not reference a building")
)

type Type string

const (
	TypeBuilding Type = "building"
	TypeRoom     Type = "room"
	TypePOI      Type = "poi"
	TypeFacility Type = "facility"
	TypeParking  Type = "parking"
	TypeEntrance Type = "entrance"
)

var Types = []Type{TypeBuilding, TypeRoom, TypePOI, TypeFacility, TypeParking, TypeEntrance}

func ParseType(raw string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	return t, slices.Contains(Types, t)
}

// Facilities is the accepted amenity vocabulary.
var Facilities = []string{"wifi", "projector", "whiteboard", "ac", "parking", "accessible", "food", "restroom"}

func IsFacility(raw string) bool {
	return slices.Contains(Facilities, strings.ToLower(strings.TrimSpace(raw)))
}

// Weekdays are the accepted opening-hours keys, values "HH:MM-HH:MM".
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

type Location struct {
	ID             string            `json:"-"`
	ULID           string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Type           Type              `json:"type"`
	Latitude       float64           `json:"latitude"`
	Longitude      float64           `json:"longitude"`
	BuildingULID   *string           `json:"buildingId,omitempty"`
	Floor          *int              `json:"floor,omitempty"`
	Capacity       *int              `json:"capacity,omitempty"`
	Facilities     []string          `json:"facilities"`
	Tags           []string          `json:"tags"`
	OpeningHours   map[string]string `json:"openingHours,omitempty"`
	IsActive       bool              `json:"isActive"`
	DistanceMeters *float64          `json:"distanceMeters,omitempty"`
	Rooms          []Location        `json:"rooms,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type CreateInput struct {
	Name         string            `json:"name" validate:"required,min=2,max=100"`
	Description  string            `json:"description" validate:"max=1000"`
	Type         string            `json:"type" validate:"required,oneof=building room poi facility parking entrance"`
	Latitude     float64           `json:"latitude" validate:"latitude"`
	Longitude    float64           `json:"longitude" validate:"longitude"`
	BuildingID   *string           `json:"buildingId" validate:"omitempty,len=26"`
	Floor        *int              `json:"floor" validate:"omitempty,min=-10,max=200"`
	Capacity     *int              `json:"capacity" validate:"omitempty,min=1,max=100000"`
	Facilities   []string          `json:"facilities" validate:"max=8,dive,oneof=wifi projector whiteboard ac parking accessible food restroom"`
	Tags         []string          `json:"tags" validate:"max=10,dive,min=1,max=30"`
	OpeningHours map[string]string `json:"openingHours" validate:"omitempty,dive,keys,oneof=monday tuesday wednesday thursday friday saturday sunday,endkeys,hhmmrange"`
	IsActive     *bool             `json:"isActive"`
}

type UpdateInput struct {
	Name         *string            `json:"name" validate:"omitempty,min=2,max=100"`
	Description  *string            `json:"description" validate:"omitempty,max=1000"`
	Type         *string            `json:"type" validate:"omitempty,oneof=building room poi facility parking entrance"`
	Latitude     *float64           `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64           `json:"longitude" validate:"omitempty,longitude"`
	BuildingID   *string            `json:"buildingId" validate:"omitempty,len=26"`
	Floor        *int               `json:"floor" validate:"omitempty,min=-10,max=200"`
	Capacity     *int               `json:"capacity" validate:"omitempty,min=1,max=100000"`
	Facilities   *[]string          `json:"facilities" validate:"omitempty,max=8,dive,oneof=wifi projector whiteboard ac parking accessible food restroom"`
	Tags         *[]string          `json:"tags" validate:"omitempty,max=10,dive,min=1,max=30"`
	OpeningHours *map[string]string `json:"openingHours" validate:"omitempty,dive,keys,oneof=monday tuesday wednesday thursday friday saturday sunday,endkeys,hhmmrange"`
	IsActive     *bool              `json:"isActive"`
}

func (i UpdateInput) IsEmpty() bool {
	return i.Name == nil && i.Description == nil && i.Type == nil &&
		i.Latitude == nil && i.Longitude == nil && i.BuildingID == nil &&
		i.Floor == nil && i.Capacity == nil && i.Facilities == nil &&
		i.Tags == nil && i.OpeningHours == nil && i.IsActive == nil
}

// UpdateParams is the resolved partial update applied by the repository.
type UpdateParams struct {
	Name         *string
	Description  *string
	Type         *Type
	Latitude     *float64
	Longitude    *float64
	BuildingID   *string
	Floor        *int
	Capacity     *int
	Facilities   *[]string
	Tags         *[]string
	OpeningHours *map[string]string
	IsActive     *bool
}

// Bounds is an inclusive geographic bounding box.
type Bounds struct {
	South float64
	West  float64
	North float64
	East  float64
}

type Filters struct {
	Search       string
	Type         string
	Tags         []string
	Facilities   []string
	BuildingULID string
	Floor        *int
	IsActive     *bool
	Bounds       *Bounds
	SortBy       string
	SortOrder    string
	Page         pagination.Params
}

type NearbyQuery struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Type         string
	Limit        int
}

// FilterError reports a single invalid query parameter.
type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	return e.Field + ": " + e.Message
}

var locationSortFields = map[string]string{
	"name":      "name",
	"type":      "type",
	"createdAt": "created_at",
}

// ParseFilters builds location list filters from query parameters,
// collecting every invalid parameter instead of stopping at the first.
func ParseFilters(q url.Values) (Filters, []FilterError) {
	var errs []FilterError
	f := Filters{
		Search:    strings.TrimSpace(q.Get("search")),
		SortBy:    "name",
		SortOrder: "asc",
	}

	if raw := q.Get("type"); raw != "" {
		t, ok := ParseType(raw)
		if !ok {
			errs = append(errs, FilterError{Field: "type", Message: "unknown location type"})
		} else {
			f.Type = string(t)
		}
	}
	if raw := q.Get("tags"); raw != "" {
		f.Tags = splitList(raw)
	}
	if raw := q.Get("facilities"); raw != "" {
		for _, facility := range splitList(raw) {
			if !IsFacility(facility) {
				errs = append(errs, FilterError{Field: "facilities", Message: "unknown facility: " + facility})
				continue
			}
			f.Facilities = append(f.Facilities, facility)
		}
	}
	if raw := q.Get("buildingId"); raw != "" {
		f.BuildingULID = strings.TrimSpace(raw)
	}
	if raw := q.Get("floor"); raw != "" {
		floor, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, FilterError{Field: "floor", Message: "must be an integer"})
		} else {
			f.Floor = &floor
		}
	}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, FilterError{Field: "isActive", Message: "must be true or false"})
		} else {
			f.IsActive = &active
		}
	}

	if bounds, boundErrs := parseBounds(q); boundErrs != nil {
		errs = append(errs, boundErrs...)
	} else if bounds != nil {
		f.Bounds = bounds
	}

	if raw := q.Get("sortBy"); raw != "" {
		if _, ok := locationSortFields[raw]; !ok {
			errs = append(errs, FilterError{Field: "sortBy", Message: "must be one of: name, type, createdAt"})
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

// SortColumn maps the whitelisted sortBy value to its column name.
func (f Filters) SortColumn() string {
	if col, ok := locationSortFields[f.SortBy]; ok {
		return col
	}
	return "name"
}

const (
	defaultNearbyRadius = 1000.0
	maxNearbyRadius     = 10000.0
	maxNearbyResults    = 100
)

// ParseNearby builds a proximity query from parameters. lat and lng are
// required; radius defaults to 1000 m and is capped at 10 km.
func ParseNearby(q url.Values) (NearbyQuery, []FilterError) {
	var errs []FilterError
	nq := NearbyQuery{RadiusMeters: defaultNearbyRadius, Limit: maxNearbyResults}

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		errs = append(errs, FilterError{Field: "lat", Message: "must be between -90 and 90"})
	} else {
		nq.Latitude = lat
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		errs = append(errs, FilterError{Field: "lng", Message: "must be between -180 and 180"})
	} else {
		nq.Longitude = lng
	}
	if raw := q.Get("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 || radius > maxNearbyRadius {
			errs = append(errs, FilterError{Field: "radius", Message: "must be between 1 and 10000 meters"})
		} else {
			nq.RadiusMeters = radius
		}
	}
	if raw := q.Get("type"); raw != "" {
		t, ok := ParseType(raw)
		if !ok {
			errs = append(errs, FilterError{Field: "type", Message: "unknown location type"})
		} else {
			nq.Type = string(t)
		}
	}

	return nq, errs
}

func parseBounds(q url.Values) (*Bounds, []FilterError) {
	keys := []string{"south", "west", "north", "east"}
	present := 0
	for _, key := range keys {
		if q.Get(key) != "" {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present < len(keys) {
		return nil, []FilterError{{Field: "bounds", Message: "south, west, north and east must all be provided"}}
	}

	var errs []FilterError
	values := make(map[string]float64, len(keys))
	for _, key := range keys {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			errs = append(errs, FilterError{Field: key, Message: "must be a number"})
			continue
		}
		values[key] = v
	}
	if errs != nil {
		return nil, errs
	}

	b := &Bounds{South: values["south"], West: values["west"], North: values["north"], East: values["east"]}
	if b.South > b.North {
		return nil, []FilterError{{Field: "bounds", Message: "south must not exceed north"}}
	}
	return b, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type Repository interface {
	Create(ctx context.Context, loc *Location) error
	CreateBatch(ctx context.Context, locs []*Location) error
	GetByULID(ctx context.Context, ulid string) (*Location, error)
	List(ctx context.Context, f Filters) ([]Location, int, error)
	Nearby(ctx context.Context, q NearbyQuery) ([]Location, error)
	RoomsInBuilding(ctx context.Context, buildingULID string) ([]Location, error)
	Update(ctx context.Context, ulid string, params UpdateParams) (*Location, error)
	Delete(ctx context.Context, ulid string) error
}
