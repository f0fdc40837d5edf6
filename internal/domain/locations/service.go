package locations

import (
	"context"
	"fmt"
	"strings"

	"github.com/smart-navigator/server/internal/domain/ids"
	"github.com/smart-navigator/server/internal/sanitize"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create inserts a new location. A room's buildingId must reference an
// existing building-type location.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Location, error) {
	if in.BuildingID != nil {
		if err := s.checkBuilding(ctx, *in.BuildingID); err != nil {
			return nil, err
		}
	}

	loc := &Location{
		ULID:         ids.NewULID(),
		Name:         sanitize.Text(in.Name),
		Description:  sanitize.HTML(in.Description),
		Type:         Type(in.Type),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		BuildingULID: in.BuildingID,
		Floor:        in.Floor,
		Capacity:     in.Capacity,
		Facilities:   normalizeList(in.Facilities),
		Tags:         normalizeList(sanitize.TextSlice(in.Tags)),
		OpeningHours: in.OpeningHours,
		IsActive:     true,
	}
	if in.IsActive != nil {
		loc.IsActive = *in.IsActive
	}

	if err := s.repo.Create(ctx, loc); err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}
	return loc, nil
}

// Get returns a location by ID. Buildings include their rooms.
func (s *Service) Get(ctx context.Context, ulid string) (*Location, error) {
	if err := ids.ValidateULID(ulid); err != nil {
		return nil, ErrNotFound
	}
	loc, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}
	if loc.Type == TypeBuilding {
		rooms, err := s.repo.RoomsInBuilding(ctx, loc.ULID)
		if err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		loc.Rooms = rooms
	}
	return loc, nil
}

func (s *Service) List(ctx context.Context, f Filters) ([]Location, int, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Nearby(ctx context.Context, q NearbyQuery) ([]Location, error) {
	return s.repo.Nearby(ctx, q)
}

func (s *Service) Update(ctx context.Context, ulid string, in UpdateInput) (*Location, error) {
	if err := ids.ValidateULID(ulid); err != nil {
		return nil, ErrNotFound
	}
	if in.BuildingID != nil && *in.BuildingID != "" {
		if err := s.checkBuilding(ctx, *in.BuildingID); err != nil {
			return nil, err
		}
	}

	params := UpdateParams{
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		BuildingID:   in.BuildingID,
		Floor:        in.Floor,
		Capacity:     in.Capacity,
		OpeningHours: in.OpeningHours,
		IsActive:     in.IsActive,
	}
	if in.Name != nil {
		name := sanitize.Text(*in.Name)
		params.Name = &name
	}
	if in.Description != nil {
		desc := sanitize.HTML(*in.Description)
		params.Description = &desc
	}
	if in.Type != nil {
		t := Type(*in.Type)
		params.Type = &t
	}
	if in.Facilities != nil {
		facilities := normalizeList(*in.Facilities)
		params.Facilities = &facilities
	}
	if in.Tags != nil {
		tags := normalizeList(sanitize.TextSlice(*in.Tags))
		params.Tags = &tags
	}

	return s.repo.Update(ctx, ulid, params)
}

func (s *Service) Delete(ctx context.Context, ulid string) error {
	if err := ids.ValidateULID(ulid); err != nil {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, ulid)
}

func (s *Service) checkBuilding(ctx context.Context, buildingULID string) error {
	if err := ids.ValidateULID(buildingULID); err != nil {
		return ErrBuildingInvalid
	}
	building, err := s.repo.GetByULID(ctx, buildingULID)
	if err != nil {
		return ErrBuildingInvalid
	}
	if building.Type != TypeBuilding {
		return ErrBuildingInvalid
	}
	return nil
}

// normalizeList lowercases, trims and dedupes, always returning a non-nil
// slice so array columns never store NULL.
func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		normalized := strings.ToLower(strings.TrimSpace(item))
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
