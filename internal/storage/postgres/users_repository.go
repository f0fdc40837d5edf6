package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smart-navigator/server/internal/domain/users"
)

var _ users.Repository = (*UserRepository)(nil)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *UserRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const userColumns = `id, ulid, name, email, password_hash, role, interests,
       email_verified, bio, avatar_url, created_at, updated_at`

type userRow struct {
	ID            string
	ULID          string
	Name          string
	Email         string
	PasswordHash  string
	Role          string
	Interests     []string
	EmailVerified bool
	Bio           *string
	AvatarURL     *string
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

func (row userRow) toDomain() *users.User {
	user := &users.User{
		ID:            row.ID,
		ULID:          row.ULID,
		Name:          row.Name,
		Email:         row.Email,
		PasswordHash:  row.PasswordHash,
		Role:          row.Role,
		Interests:     row.Interests,
		EmailVerified: row.EmailVerified,
		Bio:           derefString(row.Bio),
		AvatarURL:     derefString(row.AvatarURL),
	}
	if user.Interests == nil {
		user.Interests = []string{}
	}
	if row.CreatedAt.Valid {
		user.CreatedAt = row.CreatedAt.Time
	}
	if row.UpdatedAt.Valid {
		user.UpdatedAt = row.UpdatedAt.Time
	}
	return user
}

func scanUser(row pgx.Row) (*users.User, error) {
	var r userRow
	err := row.Scan(
		&r.ID,
		&r.ULID,
		&r.Name,
		&r.Email,
		&r.PasswordHash,
		&r.Role,
		&r.Interests,
		&r.EmailVerified,
		&r.Bio,
		&r.AvatarURL,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return r.toDomain(), nil
}

func (r *UserRepository) Create(ctx context.Context, user *users.User) error {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO users (ulid, name, email, password_hash, role, interests)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at
`,
		user.ULID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Interests,
	)

	var createdAt, updatedAt time.Time
	if err := row.Scan(&user.ID, &createdAt, &updatedAt); err != nil {
		if isUniqueViolation(err) {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return nil
}

func (r *UserRepository) GetByULID(ctx context.Context, ulid string) (*users.User, error) {
	row := r.queryer().QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE ulid = $1`, ulid)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	row := r.queryer().QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *UserRepository) Update(ctx context.Context, ulid string, params users.UpdateParams) (*users.User, error) {
	row := r.queryer().QueryRow(ctx, `
UPDATE users
   SET name       = COALESCE($2, name),
       interests  = COALESCE($3::text[], interests),
       bio        = COALESCE($4, bio),
       avatar_url = COALESCE($5, avatar_url),
       updated_at = now()
 WHERE ulid = $1
RETURNING `+userColumns,
		ulid,
		params.Name,
		params.Interests,
		params.Bio,
		params.AvatarURL,
	)
	return scanUser(row)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, ulid string, passwordHash string) error {
	tag, err := r.queryer().Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE ulid = $1`,
		ulid, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

// Delete removes the account; attendee rows go with it through the
// ON DELETE CASCADE foreign key.
func (r *UserRepository) Delete(ctx context.Context, ulid string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM users WHERE ulid = $1`, ulid)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}
