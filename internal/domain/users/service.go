package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/smart-navigator/server/internal/auth"
	"github.com/smart-navigator/server/internal/domain/ids"
	"github.com/smart-navigator/server/internal/sanitize"
)

// Service implements account lifecycle on top of a Repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new account with the student role. The email is
// normalized to lower case before the uniqueness check.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ULID:         ids.NewULID(),
		Name:         sanitize.Text(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         string(auth.RoleStudent),
		Interests:    sanitize.TextSlice(in.Interests),
	}
	if user.Interests == nil {
		user.Interests = []string{}
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies credentials and returns the account. Lookup
// failures and password mismatches both map to ErrInvalidCredentials so
// the caller cannot distinguish which half failed.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !auth.CheckPassword(user.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetByULID(ctx context.Context, ulid string) (*User, error) {
	if err := ids.ValidateULID(ulid); err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByULID(ctx, ulid)
}

// UpdateProfile applies a partial update. Scalar fields are sanitized;
// an update with no fields set is rejected by the handler before it
// reaches here.
func (s *Service) UpdateProfile(ctx context.Context, ulid string, in UpdateProfileInput) (*User, error) {
	params := UpdateParams{}
	if in.Name != nil {
		name := sanitize.Text(*in.Name)
		params.Name = &name
	}
	if in.Interests != nil {
		interests := sanitize.TextSlice(*in.Interests)
		if interests == nil {
			interests = []string{}
		}
		params.Interests = &interests
	}
	if in.Bio != nil {
		bio := sanitize.Text(*in.Bio)
		params.Bio = &bio
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		params.AvatarURL = &avatar
	}
	return s.repo.Update(ctx, ulid, params)
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, ulid string, in ChangePasswordInput) error {
	user, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, in.CurrentPassword) {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, ulid, hash)
}

func (s *Service) Delete(ctx context.Context, ulid string) error {
	return s.repo.Delete(ctx, ulid)
}
