package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smart-navigator/server/internal/domain/events"
)

var _ events.Repository = (*EventRepository)(nil)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type eventRow struct {
	ID                   string
	ULID                 string
	Title                string
	Description          *string
	Category             string
	StartTime            pgtype.Timestamptz
	EndTime              pgtype.Timestamptz
	LocationULID         *string
	LocationName         *string
	ExternalLocation     *string
	Capacity             int
	AttendeeCount        int
	RegistrationRequired bool
	RegistrationDeadline pgtype.Timestamptz
	Tags                 []string
	OrganizerName        string
	OrganizerEmail       string
	OrganizerPhone       *string
	OrganizerOrg         *string
	IsPublic             bool
	RequiresApproval     bool
	CreatedAt            pgtype.Timestamptz
	UpdatedAt            pgtype.Timestamptz
}

func (row eventRow) toDomain() events.Event {
	event := events.Event{
		ID:                   row.ID,
		ULID:                 row.ULID,
		Title:                row.Title,
		Description:          derefString(row.Description),
		Category:             events.Category(row.Category),
		LocationULID:         row.LocationULID,
		LocationName:         derefString(row.LocationName),
		ExternalLocation:     derefString(row.ExternalLocation),
		Capacity:             row.Capacity,
		AttendeeCount:        row.AttendeeCount,
		RegistrationRequired: row.RegistrationRequired,
		Tags:                 row.Tags,
		Organizer: events.Organizer{
			Name:         row.OrganizerName,
			Email:        row.OrganizerEmail,
			Phone:        derefString(row.OrganizerPhone),
			Organization: derefString(row.OrganizerOrg),
		},
		IsPublic:         row.IsPublic,
		RequiresApproval: row.RequiresApproval,
	}
	if event.Tags == nil {
		event.Tags = []string{}
	}
	if row.StartTime.Valid {
		event.StartTime = row.StartTime.Time
	}
	if row.EndTime.Valid {
		t := row.EndTime.Time
		event.EndTime = &t
	}
	if row.RegistrationDeadline.Valid {
		t := row.RegistrationDeadline.Time
		event.RegistrationDeadline = &t
	}
	if row.CreatedAt.Valid {
		event.CreatedAt = row.CreatedAt.Time
	}
	if row.UpdatedAt.Valid {
		event.UpdatedAt = row.UpdatedAt.Time
	}
	event.AvailableSpots = event.Capacity - event.AttendeeCount
	if event.AvailableSpots < 0 {
		event.AvailableSpots = 0
	}
	return event
}

const eventSelect = `
SELECT e.id, e.ulid, e.title, e.description, e.category, e.start_time,
       e.end_time, l.ulid, l.name, e.external_location, e.capacity,
       (SELECT COUNT(*) FROM event_attendees a WHERE a.event_id = e.id),
       e.registration_required, e.registration_deadline, e.tags,
       e.organizer_name, e.organizer_email, e.organizer_phone,
       e.organizer_org, e.is_public, e.requires_approval,
       e.created_at, e.updated_at
  FROM events e
  LEFT JOIN locations l ON e.location_id = l.id`

func scanEvent(rows pgx.Rows, extra ...any) (eventRow, error) {
	var row eventRow
	dest := []any{
		&row.ID, &row.ULID, &row.Title, &row.Description, &row.Category,
		&row.StartTime, &row.EndTime, &row.LocationULID, &row.LocationName,
		&row.ExternalLocation, &row.Capacity, &row.AttendeeCount,
		&row.RegistrationRequired, &row.RegistrationDeadline, &row.Tags,
		&row.OrganizerName, &row.OrganizerEmail, &row.OrganizerPhone,
		&row.OrganizerOrg, &row.IsPublic, &row.RequiresApproval,
		&row.CreatedAt, &row.UpdatedAt,
	}
	dest = append(dest, extra...)
	return row, rows.Scan(dest...)
}

func (r *EventRepository) collect(rows pgx.Rows, label string) ([]events.Event, error) {
	defer rows.Close()

	var items []events.Event
	for rows.Next() {
		row, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		items = append(items, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", label, err)
	}
	return items, nil
}

func (r *EventRepository) Create(ctx context.Context, event *events.Event) error {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO events (ulid, title, description, category, start_time, end_time,
                    location_id, external_location, capacity,
                    registration_required, registration_deadline, tags,
                    organizer_name, organizer_email, organizer_phone,
                    organizer_org, is_public, requires_approval)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6,
        (SELECT id FROM locations WHERE ulid = NULLIF($7, '')),
        NULLIF($8, ''), $9, $10, $11, $12,
        $13, $14, NULLIF($15, ''), NULLIF($16, ''), $17, $18)
RETURNING id, created_at, updated_at`,
		event.ULID,
		event.Title,
		event.Description,
		string(event.Category),
		event.StartTime,
		event.EndTime,
		derefString(event.LocationULID),
		event.ExternalLocation,
		event.Capacity,
		event.RegistrationRequired,
		event.RegistrationDeadline,
		event.Tags,
		event.Organizer.Name,
		event.Organizer.Email,
		event.Organizer.Phone,
		event.Organizer.Organization,
		event.IsPublic,
		event.RequiresApproval,
	)

	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&event.ID, &createdAt, &updatedAt); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	event.CreatedAt = createdAt.Time
	event.UpdatedAt = updatedAt.Time
	return nil
}

func (r *EventRepository) GetByULID(ctx context.Context, ulid string) (*events.Event, error) {
	rows, err := r.queryer().Query(ctx, eventSelect+` WHERE e.ulid = $1`, ulid)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get event: %w", err)
		}
		return nil, events.ErrNotFound
	}
	row, err := scanEvent(rows)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	event := row.toDomain()
	return &event, nil
}

// List composes all filters into a single query, rank-ordered when a
// search term is present.
func (r *EventRepository) List(ctx context.Context, f events.Filters) ([]events.Event, int, error) {
	order := "ASC"
	if f.SortOrder == "desc" {
		order = "DESC"
	}
	orderClause := fmt.Sprintf(`
 ORDER BY CASE WHEN $1 <> '' THEN ts_rank(e.search, websearch_to_tsquery('english', $1)) END DESC NULLS LAST,
          e.%s %s, e.ulid ASC`, f.SortColumn(), order)

	rows, err := r.queryer().Query(ctx, `
SELECT e.id, e.ulid, e.title, e.description, e.category, e.start_time,
       e.end_time, l.ulid, l.name, e.external_location, e.capacity,
       (SELECT COUNT(*) FROM event_attendees a WHERE a.event_id = e.id),
       e.registration_required, e.registration_deadline, e.tags,
       e.organizer_name, e.organizer_email, e.organizer_phone,
       e.organizer_org, e.is_public, e.requires_approval,
       e.created_at, e.updated_at,
       COUNT(*) OVER() AS total
  FROM events e
  LEFT JOIN locations l ON e.location_id = l.id
 WHERE ($1 = '' OR e.search @@ websearch_to_tsquery('english', $1))
   AND ($2 = '' OR e.category = $2)
   AND ($3::text[] IS NULL OR e.tags && $3)
   AND ($4 = '' OR l.ulid = $4)
   AND ($5::timestamptz IS NULL OR e.start_time >= $5)
   AND ($6::timestamptz IS NULL OR e.start_time <= $6)
   AND (NOT $7::boolean OR e.start_time >= now())`+
		orderClause+`
 LIMIT $8 OFFSET $9`,
		f.Search,
		f.Category,
		f.Tags,
		f.LocationULID,
		f.From,
		f.To,
		f.Upcoming,
		f.Page.Limit,
		f.Page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var (
		items []events.Event
		total int
	)
	for rows.Next() {
		row, err := scanEvent(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan events: %w", err)
		}
		items = append(items, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}
	return items, total, nil
}

func (r *EventRepository) Update(ctx context.Context, ulid string, params events.UpdateParams) (*events.Event, error) {
	var category *string
	if params.Category != nil {
		c := string(*params.Category)
		category = &c
	}
	var organizerName, organizerEmail, organizerPhone, organizerOrg *string
	if params.Organizer != nil {
		organizerName = &params.Organizer.Name
		organizerEmail = &params.Organizer.Email
		organizerPhone = &params.Organizer.Phone
		organizerOrg = &params.Organizer.Organization
	}

	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET title                 = COALESCE($2, title),
       description           = COALESCE($3, description),
       category              = COALESCE($4, category),
       start_time            = COALESCE($5, start_time),
       end_time              = COALESCE($6, end_time),
       location_id           = CASE WHEN $7::text IS NOT NULL AND $7 <> ''
                                      THEN (SELECT id FROM locations WHERE ulid = $7)
                                    WHEN NULLIF($8, '') IS NOT NULL THEN NULL
                                    ELSE location_id END,
       external_location     = CASE WHEN NULLIF($8, '') IS NOT NULL THEN $8
                                    WHEN $7::text IS NOT NULL AND $7 <> '' THEN NULL
                                    ELSE external_location END,
       capacity              = COALESCE($9, capacity),
       registration_required = COALESCE($10, registration_required),
       registration_deadline = COALESCE($11, registration_deadline),
       tags                  = COALESCE($12::text[], tags),
       organizer_name        = COALESCE($13, organizer_name),
       organizer_email       = COALESCE($14, organizer_email),
       organizer_phone       = COALESCE(NULLIF($15, ''), organizer_phone),
       organizer_org         = COALESCE(NULLIF($16, ''), organizer_org),
       is_public             = COALESCE($17, is_public),
       requires_approval     = COALESCE($18, requires_approval),
       updated_at            = now()
 WHERE ulid = $1`,
		ulid,
		params.Title,
		params.Description,
		category,
		params.StartTime,
		params.EndTime,
		params.LocationID,
		derefString(params.ExternalLocation),
		params.Capacity,
		params.RegistrationRequired,
		params.RegistrationDeadline,
		params.Tags,
		organizerName,
		organizerEmail,
		organizerPhone,
		organizerOrg,
		params.IsPublic,
		params.RequiresApproval,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, events.ErrNotFound
	}
	return r.GetByULID(ctx, ulid)
}

func (r *EventRepository) Delete(ctx context.Context, ulid string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE ulid = $1`, ulid)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

// Register appends an attendee. The event row is locked first so
// concurrent registrations for the last spot serialize; the capacity check
// and the insert then form one atomic unit and capacity can never be
// exceeded.
func (r *EventRepository) Register(ctx context.Context, eventULID, userULID string) error {
	run := func(ctx context.Context, tx pgx.Tx) error {
		var eventID string
		var capacity int
		err := tx.QueryRow(ctx,
			`SELECT id, capacity FROM events WHERE ulid = $1 FOR UPDATE`,
			eventULID).Scan(&eventID, &capacity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return events.ErrNotFound
			}
			return fmt.Errorf("lock event: %w", err)
		}

		tag, err := tx.Exec(ctx, `
INSERT INTO event_attendees (event_id, user_id)
SELECT $1, u.id
  FROM users u
 WHERE u.ulid = $2
   AND (SELECT COUNT(*) FROM event_attendees a WHERE a.event_id = $1) < $3`,
			eventID, userULID, capacity)
		if err != nil {
			if isUniqueViolation(err) {
				return events.ErrAlreadyRegistered
			}
			return fmt.Errorf("register attendee: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Nothing inserted either because the event is full or because
			// the account behind a still-valid session has been deleted.
			var attendeeExists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM users WHERE ulid = $1)`,
				userULID).Scan(&attendeeExists)
			if err != nil {
				return fmt.Errorf("check attendee account: %w", err)
			}
			if !attendeeExists {
				return events.ErrUnknownAttendee
			}
			return events.ErrEventFull
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

func (r *EventRepository) Unregister(ctx context.Context, eventULID, userULID string) error {
	_, err := r.queryer().Exec(ctx, `
DELETE FROM event_attendees
 WHERE event_id = (SELECT id FROM events WHERE ulid = $1)
   AND user_id = (SELECT id FROM users WHERE ulid = $2)`,
		eventULID, userULID)
	if err != nil {
		return fmt.Errorf("unregister attendee: %w", err)
	}
	return nil
}

func (r *EventRepository) IsRegistered(ctx context.Context, eventULID, userULID string) (bool, error) {
	var registered bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS(
  SELECT 1 FROM event_attendees a
    JOIN events e ON a.event_id = e.id
    JOIN users u ON a.user_id = u.id
   WHERE e.ulid = $1 AND u.ulid = $2)`,
		eventULID, userULID).Scan(&registered)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return registered, nil
}

func (r *EventRepository) ListRegisteredByUser(ctx context.Context, userULID string, upcomingOnly bool) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, eventSelect+`
  JOIN event_attendees a ON a.event_id = e.id
  JOIN users u ON a.user_id = u.id
 WHERE u.ulid = $1
   AND (NOT $2::boolean OR e.start_time >= now())
 ORDER BY e.start_time ASC`,
		userULID, upcomingOnly)
	if err != nil {
		return nil, fmt.Errorf("list registered events: %w", err)
	}
	return r.collect(rows, "registered events")
}

func (r *EventRepository) Recommended(ctx context.Context, interests []string, limit int) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, eventSelect+`
 WHERE e.is_public
   AND e.start_time >= now()
   AND e.tags && $1::text[]
 ORDER BY e.start_time ASC
 LIMIT $2`,
		interests, limit)
	if err != nil {
		return nil, fmt.Errorf("recommended events: %w", err)
	}
	return r.collect(rows, "recommended events")
}

func (r *EventRepository) Upcoming(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, eventSelect+`
 WHERE e.is_public
   AND e.start_time >= now()
 ORDER BY e.start_time ASC
 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming events: %w", err)
	}
	return r.collect(rows, "upcoming events")
}
