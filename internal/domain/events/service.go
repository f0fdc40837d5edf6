package events

import (
	"context"
	"fmt"
	"time"

	"github.com/smart-navigator/server/internal/domain/ids"
	"github.com/smart-navigator/server/internal/domain/locations"
	"github.com/smart-navigator/server/internal/sanitize"
)

// LocationChecker resolves on-campus location references.
type LocationChecker interface {
	GetByULID(ctx context.Context, ulid string) (*locations.Location, error)
}

type Service struct {
	repo      Repository
	locations LocationChecker
	now       func() time.Time
}

func NewService(repo Repository, locs LocationChecker) *Service {
	return &Service{repo: repo, locations: locs, now: time.Now}
}

// Create inserts a new event. An on-campus locationId must reference an
// existing location.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Event, error) {
	if in.LocationID != "" {
		if err := s.checkLocation(ctx, in.LocationID); err != nil {
			return nil, err
		}
	}

	event := &Event{
		ULID:                 ids.NewULID(),
		Title:                sanitize.Text(in.Title),
		Description:          sanitize.HTML(in.Description),
		Category:             Category(in.Category),
		StartTime:            in.StartTime,
		EndTime:              in.EndTime,
		ExternalLocation:     sanitize.Text(in.ExternalLocation),
		Capacity:             DefaultCapacity,
		RegistrationRequired: true,
		RegistrationDeadline: in.RegistrationDeadline,
		Tags:                 sanitize.TextSlice(in.Tags),
		Organizer: Organizer{
			Name:         sanitize.Text(in.Organizer.Name),
			Email:        in.Organizer.Email,
			Phone:        sanitize.Text(in.Organizer.Phone),
			Organization: sanitize.Text(in.Organizer.Organization),
		},
		IsPublic: true,
	}
	if in.LocationID != "" {
		event.LocationULID = &in.LocationID
	}
	if event.Tags == nil {
		event.Tags = []string{}
	}
	if in.Capacity != nil {
		event.Capacity = *in.Capacity
	}
	if in.RegistrationRequired != nil {
		event.RegistrationRequired = *in.RegistrationRequired
	}
	if in.IsPublic != nil {
		event.IsPublic = *in.IsPublic
	}
	if in.RequiresApproval != nil {
		event.RequiresApproval = *in.RequiresApproval
	}
	event.AvailableSpots = event.Capacity

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// Get returns an event. When viewerULID is set, IsRegistered reflects the
// viewer's registration status.
func (s *Service) Get(ctx context.Context, ulid, viewerULID string) (*Event, error) {
	if err := ids.ValidateULID(ulid); err != nil {
		return nil, ErrNotFound
	}
	event, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}
	if viewerULID != "" {
		registered, err := s.repo.IsRegistered(ctx, ulid, viewerULID)
		if err != nil {
			return nil, fmt.Errorf("check registration: %w", err)
		}
		event.IsRegistered = &registered
	}
	return event, nil
}

func (s *Service) List(ctx context.Context, f Filters) ([]Event, int, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Upcoming(ctx context.Context, limit int) ([]Event, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.repo.Upcoming(ctx, limit)
}

// Recommended matches upcoming events against the user's interests. Users
// without interests get the plain upcoming list.
func (s *Service) Recommended(ctx context.Context, interests []string, limit int) ([]Event, error) {
	if limit < 1 || limit > 100 {
		limit = 5
	}
	if len(interests) == 0 {
		return s.repo.Upcoming(ctx, limit)
	}
	return s.repo.Recommended(ctx, interests, limit)
}

// Register adds the user as an attendee. The deadline (or start time, when
// no deadline is set) closes registration; the capacity bound itself is
// enforced atomically by the repository.
func (s *Service) Register(ctx context.Context, eventULID, userULID string) (*Event, error) {
	if err := ids.ValidateULID(eventULID); err != nil {
		return nil, ErrNotFound
	}
	event, err := s.repo.GetByULID(ctx, eventULID)
	if err != nil {
		return nil, err
	}
	if !event.RegistrationOpen(s.now()) {
		return nil, ErrRegistrationClosed
	}
	if err := s.repo.Register(ctx, eventULID, userULID); err != nil {
		return nil, err
	}
	return s.Get(ctx, eventULID, userULID)
}

func (s *Service) Unregister(ctx context.Context, eventULID, userULID string) error {
	if err := ids.ValidateULID(eventULID); err != nil {
		return ErrNotFound
	}
	return s.repo.Unregister(ctx, eventULID, userULID)
}

// RegisteredFor lists the user's registered events, upcoming first.
func (s *Service) RegisteredFor(ctx context.Context, userULID string, upcomingOnly bool) ([]Event, error) {
	return s.repo.ListRegisteredByUser(ctx, userULID, upcomingOnly)
}

func (s *Service) Update(ctx context.Context, ulid string, in UpdateInput) (*Event, error) {
	if err := ids.ValidateULID(ulid); err != nil {
		return nil, ErrNotFound
	}
	if in.LocationID != nil && *in.LocationID != "" {
		if err := s.checkLocation(ctx, *in.LocationID); err != nil {
			return nil, err
		}
	}

	params := UpdateParams{
		StartTime:            in.StartTime,
		EndTime:              in.EndTime,
		LocationID:           in.LocationID,
		Capacity:             in.Capacity,
		RegistrationRequired: in.RegistrationRequired,
		RegistrationDeadline: in.RegistrationDeadline,
		IsPublic:             in.IsPublic,
		RequiresApproval:     in.RequiresApproval,
	}
	if in.Title != nil {
		title := sanitize.Text(*in.Title)
		params.Title = &title
	}
	if in.Description != nil {
		desc := sanitize.HTML(*in.Description)
		params.Description = &desc
	}
	if in.Category != nil {
		c := Category(*in.Category)
		params.Category = &c
	}
	if in.ExternalLocation != nil {
		ext := sanitize.Text(*in.ExternalLocation)
		params.ExternalLocation = &ext
	}
	if in.Tags != nil {
		tags := sanitize.TextSlice(*in.Tags)
		if tags == nil {
			tags = []string{}
		}
		params.Tags = &tags
	}
	if in.Organizer != nil {
		params.Organizer = &Organizer{
			Name:         sanitize.Text(in.Organizer.Name),
			Email:        in.Organizer.Email,
			Phone:        sanitize.Text(in.Organizer.Phone),
			Organization: sanitize.Text(in.Organizer.Organization),
		}
	}

	return s.repo.Update(ctx, ulid, params)
}

func (s *Service) Delete(ctx context.Context, ulid string) error {
	if err := ids.ValidateULID(ulid); err != nil {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, ulid)
}

func (s *Service) checkLocation(ctx context.Context, locationULID string) error {
	if err := ids.ValidateULID(locationULID); err != nil {
		return ErrLocationInvalid
	}
	if _, err := s.locations.GetByULID(ctx, locationULID); err != nil {
		return ErrLocationInvalid
	}
	return nil
}
