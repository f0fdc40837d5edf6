package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smart-navigator/server/internal/domain/locations"
)

var _ locations.Repository = (*LocationRepository)(nil)

type LocationRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *LocationRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type locationRow struct {
	ID             string
	ULID           string
	Name           string
	Description    *string
	Type           string
	Latitude       float64
	Longitude      float64
	BuildingULID   *string
	Floor          *int
	Capacity       *int
	Facilities     []string
	Tags           []string
	OpeningHours   map[string]string
	IsActive       bool
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
	DistanceMeters *float64
}

func (row locationRow) toDomain() locations.Location {
	loc := locations.Location{
		ID:             row.ID,
		ULID:           row.ULID,
		Name:           row.Name,
		Description:    derefString(row.Description),
		Type:           locations.Type(row.Type),
		Latitude:       row.Latitude,
		Longitude:      row.Longitude,
		BuildingULID:   row.BuildingULID,
		Floor:          row.Floor,
		Capacity:       row.Capacity,
		Facilities:     row.Facilities,
		Tags:           row.Tags,
		OpeningHours:   row.OpeningHours,
		IsActive:       row.IsActive,
		DistanceMeters: row.DistanceMeters,
	}
	if loc.Facilities == nil {
		loc.Facilities = []string{}
	}
	if loc.Tags == nil {
		loc.Tags = []string{}
	}
	if row.CreatedAt.Valid {
		loc.CreatedAt = row.CreatedAt.Time
	}
	if row.UpdatedAt.Valid {
		loc.UpdatedAt = row.UpdatedAt.Time
	}
	return loc
}

const locationSelect = `
SELECT l.id, l.ulid, l.name, l.description, l.type, l.latitude, l.longitude,
       b.ulid, l.floor, l.capacity, l.facilities, l.tags, l.opening_hours,
       l.is_active, l.created_at, l.updated_at
  FROM locations l
  LEFT JOIN locations b ON l.building_id = b.id`

func scanLocation(rows pgx.Rows, extra ...any) (locationRow, error) {
	var row locationRow
	dest := []any{
		&row.ID, &row.ULID, &row.Name, &row.Description, &row.Type,
		&row.Latitude, &row.Longitude, &row.BuildingULID, &row.Floor,
		&row.Capacity, &row.Facilities, &row.Tags, &row.OpeningHours,
		&row.IsActive, &row.CreatedAt, &row.UpdatedAt,
	}
	dest = append(dest, extra...)
	return row, rows.Scan(dest...)
}

const insertLocationSQL = `
INSERT INTO locations (ulid, name, description, type, latitude, longitude,
                       building_id, floor, capacity, facilities, tags,
                       opening_hours, is_active)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6,
        (SELECT id FROM locations WHERE ulid = NULLIF($7, '')),
        $8, $9, $10, $11, $12, $13)
RETURNING id, created_at, updated_at`

func (r *LocationRepository) Create(ctx context.Context, loc *locations.Location) error {
	row := r.queryer().QueryRow(ctx, insertLocationSQL, insertLocationArgs(loc)...)

	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&loc.ID, &createdAt, &updatedAt); err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	loc.CreatedAt = createdAt.Time
	loc.UpdatedAt = updatedAt.Time
	return nil
}

// CreateBatch inserts all rows in one transaction; any failure rolls the
// whole batch back.
func (r *LocationRepository) CreateBatch(ctx context.Context, locs []*locations.Location) error {
	if len(locs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, loc := range locs {
		batch.Queue(insertLocationSQL, insertLocationArgs(loc)...)
	}

	run := func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for i, loc := range locs {
			var createdAt, updatedAt pgtype.Timestamptz
			if err := results.QueryRow().Scan(&loc.ID, &createdAt, &updatedAt); err != nil {
				return fmt.Errorf("insert location batch row %d: %w", i+1, err)
			}
			loc.CreatedAt = createdAt.Time
			loc.UpdatedAt = updatedAt.Time
		}
		return results.Close()
	}

	if r.tx != nil {
		return run(r.tx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := run(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertLocationArgs(loc *locations.Location) []any {
	return []any{
		loc.ULID,
		loc.Name,
		loc.Description,
		string(loc.Type),
		loc.Latitude,
		loc.Longitude,
		derefString(loc.BuildingULID),
		loc.Floor,
		loc.Capacity,
		loc.Facilities,
		loc.Tags,
		loc.OpeningHours,
		loc.IsActive,
	}
}

func (r *LocationRepository) GetByULID(ctx context.Context, ulid string) (*locations.Location, error) {
	rows, err := r.queryer().Query(ctx, locationSelect+` WHERE l.ulid = $1`, ulid)
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get location: %w", err)
		}
		return nil, locations.ErrNotFound
	}
	row, err := scanLocation(rows)
	if err != nil {
		return nil, fmt.Errorf("scan location: %w", err)
	}
	loc := row.toDomain()
	return &loc, nil
}

// List composes all filters into a single query. The sort column comes
// from a whitelist, never from user input directly. When a search term is
// present, rank ordering wins over the requested sort.
func (r *LocationRepository) List(ctx context.Context, f locations.Filters) ([]locations.Location, int, error) {
	var south, west, north, east *float64
	if f.Bounds != nil {
		south, west, north, east = &f.Bounds.South, &f.Bounds.West, &f.Bounds.North, &f.Bounds.East
	}

	order := "ASC"
	if f.SortOrder == "desc" {
		order = "DESC"
	}
	orderClause := fmt.Sprintf(`
 ORDER BY CASE WHEN $1 <> '' THEN ts_rank(l.search, websearch_to_tsquery('english', $1)) END DESC NULLS LAST,
          l.%s %s, l.ulid ASC`, f.SortColumn(), order)

	rows, err := r.queryer().Query(ctx, `
SELECT l.id, l.ulid, l.name, l.description, l.type, l.latitude, l.longitude,
       b.ulid, l.floor, l.capacity, l.facilities, l.tags, l.opening_hours,
       l.is_active, l.created_at, l.updated_at,
       COUNT(*) OVER() AS total
  FROM locations l
  LEFT JOIN locations b ON l.building_id = b.id
 WHERE ($1 = '' OR l.search @@ websearch_to_tsquery('english', $1))
   AND ($2 = '' OR l.type = $2)
   AND ($3::text[] IS NULL OR l.tags && $3)
   AND ($4::text[] IS NULL OR l.facilities && $4)
   AND ($5 = '' OR b.ulid = $5)
   AND ($6::int IS NULL OR l.floor = $6)
   AND ($7::boolean IS NULL OR l.is_active = $7)
   AND ($8::float8 IS NULL OR
        (l.latitude BETWEEN $8 AND $10 AND l.longitude BETWEEN $9 AND $11))`+
		orderClause+`
 LIMIT $12 OFFSET $13`,
		f.Search,
		f.Type,
		f.Tags,
		f.Facilities,
		f.BuildingULID,
		f.Floor,
		f.IsActive,
		south,
		west,
		north,
		east,
		f.Page.Limit,
		f.Page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var (
		items []locations.Location
		total int
	)
	for rows.Next() {
		row, err := scanLocation(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan locations: %w", err)
		}
		items = append(items, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate locations: %w", err)
	}
	return items, total, nil
}

// Nearby finds active locations within the radius, nearest first.
func (r *LocationRepository) Nearby(ctx context.Context, q locations.NearbyQuery) ([]locations.Location, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT l.id, l.ulid, l.name, l.description, l.type, l.latitude, l.longitude,
       b.ulid, l.floor, l.capacity, l.facilities, l.tags, l.opening_hours,
       l.is_active, l.created_at, l.updated_at,
       ST_Distance(l.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_m
  FROM locations l
  LEFT JOIN locations b ON l.building_id = b.id
 WHERE l.is_active
   AND ST_DWithin(l.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
   AND ($4 = '' OR l.type = $4)
 ORDER BY distance_m ASC
 LIMIT $5`,
		q.Latitude,
		q.Longitude,
		q.RadiusMeters,
		q.Type,
		q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("nearby locations: %w", err)
	}
	defer rows.Close()

	var items []locations.Location
	for rows.Next() {
		var distance float64
		row, err := scanLocation(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan nearby: %w", err)
		}
		loc := row.toDomain()
		loc.DistanceMeters = &distance
		items = append(items, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearby: %w", err)
	}
	return items, nil
}

func (r *LocationRepository) RoomsInBuilding(ctx context.Context, buildingULID string) ([]locations.Location, error) {
	rows, err := r.queryer().Query(ctx, locationSelect+`
 WHERE b.ulid = $1 AND l.type = 'room'
 ORDER BY l.floor ASC NULLS LAST, l.name ASC`, buildingULID)
	if err != nil {
		return nil, fmt.Errorf("rooms in building: %w", err)
	}
	defer rows.Close()

	var items []locations.Location
	for rows.Next() {
		row, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		items = append(items, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return items, nil
}

func (r *LocationRepository) Update(ctx context.Context, ulid string, params locations.UpdateParams) (*locations.Location, error) {
	var locType *string
	if params.Type != nil {
		t := string(*params.Type)
		locType = &t
	}

	tag, err := r.queryer().Exec(ctx, `
UPDATE locations
   SET name          = COALESCE($2, name),
       description   = COALESCE($3, description),
       type          = COALESCE($4, type),
       latitude      = COALESCE($5, latitude),
       longitude     = COALESCE($6, longitude),
       building_id   = CASE WHEN $7::text IS NULL THEN building_id
                            WHEN $7 = '' THEN NULL
                            ELSE (SELECT id FROM locations WHERE ulid = $7) END,
       floor         = COALESCE($8, floor),
       capacity      = COALESCE($9, capacity),
       facilities    = COALESCE($10::text[], facilities),
       tags          = COALESCE($11::text[], tags),
       opening_hours = COALESCE($12, opening_hours),
       is_active     = COALESCE($13, is_active),
       updated_at    = now()
 WHERE ulid = $1`,
		ulid,
		params.Name,
		params.Description,
		locType,
		params.Latitude,
		params.Longitude,
		params.BuildingID,
		params.Floor,
		params.Capacity,
		params.Facilities,
		params.Tags,
		params.OpeningHours,
		params.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("update location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, locations.ErrNotFound
	}
	return r.GetByULID(ctx, ulid)
}

// Delete removes the location. Events that pointed at it keep its name as
// their external location; the table constraint requires one of the two to
// be set, so the detach and the delete form one transaction.
func (r *LocationRepository) Delete(ctx context.Context, ulid string) error {
	run := func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
UPDATE events e
   SET location_id = NULL,
       external_location = l.name,
       updated_at = now()
  FROM locations l
 WHERE l.ulid = $1
   AND e.location_id = l.id`, ulid)
		if err != nil {
			return fmt.Errorf("detach events: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM locations WHERE ulid = $1`, ulid)
		if err != nil {
			return fmt.Errorf("delete location: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return locations.ErrNotFound
		}
		return nil
	}

	if r.tx != nil {
		return run(ctx, r.tx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := run(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
