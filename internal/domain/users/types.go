package users

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type User struct {
	ID            string    `json:"-"`
	ULID          string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	Interests     []string  `json:"interests"`
	EmailVerified bool      `json:"isEmailVerified"`
	Bio           string    `json:"bio,omitempty"`
	AvatarURL     string    `json:"avatar,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RegisterInput is the payload for account creation.
type RegisterInput struct {
	Name        string   `json:"name" validate:"required,min=2,max=50"`
	Email       string   `json:"email" validate:"required,email,max=100"`
	Password    string   `json:"password" validate:"required,password"`
	Interests   []string `json:"interests" validate:"max=10,dive,min=1,max=50"`
	AcceptTerms bool     `json:"acceptTerms" validate:"required,eq=true"`
}

type LoginInput struct {
	Email      string `json:"email" validate:"required,email,max=100"`
	Password   string `json:"password" validate:"required,min=1,max=128"`
	RememberMe bool   `json:"rememberMe"`
}

// UpdateProfileInput carries a partial profile update; at least one field
// must be set.
type UpdateProfileInput struct {
	Name      *string   `json:"name" validate:"omitempty,min=2,max=50"`
	Interests *[]string `json:"interests" validate:"omitempty,max=10,dive,min=1,max=50"`
	Bio       *string   `json:"bio" validate:"omitempty,max=500"`
	AvatarURL *string   `json:"avatar" validate:"omitempty,url,max=500"`
}

func (i UpdateProfileInput) IsEmpty() bool {
	return i.Name == nil && i.Interests == nil && i.Bio == nil && i.AvatarURL == nil
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required,min=1,max=128"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// UpdateParams is the resolved set of profile changes applied by the
// repository. Nil fields are left unchanged.
type UpdateParams struct {
	Name      *string
	Interests *[]string
	Bio       *string
	AvatarURL *string
}

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByULID(ctx context.Context, ulid string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, ulid string, params UpdateParams) (*User, error)
	UpdatePassword(ctx context.Context, ulid string, passwordHash string) error
	// Delete removes the account. Attendee records referencing the user are
	// removed by the storage layer in the same operation.
	Delete(ctx context.Context, ulid string) error
}
