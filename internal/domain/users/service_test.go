package users

import (
	"context"
	"testing"

	"github.com/smart-navigator/server/internal/auth"
)

type fakeRepo struct {
	byEmail map[string]*User
	byULID  map[string]*User
	deleted []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byEmail: make(map[string]*User),
		byULID:  make(map[string]*User),
	}
}

func (f *fakeRepo) Create(_ context.Context, u *User) error {
	f.byEmail[u.Email] = u
	f.byULID[u.ULID] = u
	return nil
}

func (f *fakeRepo) GetByULID(_ context.Context, ulid string) (*User, error) {
	u, ok := f.byULID[ulid]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) Update(_ context.Context, ulid string, params UpdateParams) (*User, error) {
	u, ok := f.byULID[ulid]
	if !ok {
		return nil, ErrNotFound
	}
	if params.Name != nil {
		u.Name = *params.Name
	}
	if params.Interests != nil {
		u.Interests = *params.Interests
	}
	if params.Bio != nil {
		u.Bio = *params.Bio
	}
	if params.AvatarURL != nil {
		u.AvatarURL = *params.AvatarURL
	}
	return u, nil
}

func (f *fakeRepo) UpdatePassword(_ context.Context, ulid string, hash string) error {
	u, ok := f.byULID[ulid]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, ulid string) error {
	u, ok := f.byULID[ulid]
	if !ok {
		return ErrNotFound
	}
	delete(f.byEmail, u.Email)
	delete(f.byULID, ulid)
	f.deleted = append(f.deleted, ulid)
	return nil
}

func TestRegisterNormalizesEmail(t *testing.T) {
	svc := NewService(newFakeRepo())

	user, err := svc.Register(context.Background(), RegisterInput{
		Name:        "Jordan Lee",
		Email:       "  Jordan.Lee@Campus.EDU ",
		Password:    "Sup3r$ecret",
		AcceptTerms: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "jordan.lee@campus.edu" {
		t.Errorf("email = %q, want lowercase trimmed", user.Email)
	}
	if user.Role != "student" {
		t.Errorf("role = %q, want student", user.Role)
	}
	if user.PasswordHash == "Sup3r$ecret" || user.PasswordHash == "" {
		t.Error("password stored unhashed")
	}
	if user.Interests == nil {
		t.Error("interests should default to empty slice")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	in := RegisterInput{Name: "Jordan", Email: "jo@campus.edu", Password: "Sup3r$ecret", AcceptTerms: true}

	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(context.Background(), in); err != ErrEmailTaken {
		t.Errorf("second Register err = %v, want ErrEmailTaken", err)
	}
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	if _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Jordan", Email: "jo@campus.edu", Password: "Sup3r$ecret", AcceptTerms: true,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), LoginInput{Email: "JO@campus.edu", Password: "Sup3r$ecret"}); err != nil {
		t.Errorf("Authenticate with valid credentials: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), LoginInput{Email: "jo@campus.edu", Password: "wrong"}); err != ErrInvalidCredentials {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(context.Background(), LoginInput{Email: "nobody@campus.edu", Password: "Sup3r$ecret"}); err != ErrInvalidCredentials {
		t.Errorf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	user, err := svc.Register(context.Background(), RegisterInput{
		Name: "Jordan", Email: "jo@campus.edu", Password: "Sup3r$ecret", AcceptTerms: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	bio := "  CS major  "
	updated, err := svc.UpdateProfile(context.Background(), user.ULID, UpdateProfileInput{Bio: &bio})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Bio != "CS major" {
		t.Errorf("bio = %q, want sanitized", updated.Bio)
	}
	if updated.Name != "Jordan" {
		t.Errorf("name = %q, unset field should be untouched", updated.Name)
	}
}

func TestChangePassword(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	user, err := svc.Register(context.Background(), RegisterInput{
		Name: "Jordan", Email: "jo@campus.edu", Password: "Sup3r$ecret", AcceptTerms: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	err = svc.ChangePassword(context.Background(), user.ULID, ChangePasswordInput{
		CurrentPassword: "nope",
		NewPassword:     "N3w$ecret!",
		ConfirmPassword: "N3w$ecret!",
	})
	if err != ErrInvalidCredentials {
		t.Fatalf("wrong current password err = %v, want ErrInvalidCredentials", err)
	}

	err = svc.ChangePassword(context.Background(), user.ULID, ChangePasswordInput{
		CurrentPassword: "Sup3r$ecret",
		NewPassword:     "N3w$ecret!",
		ConfirmPassword: "N3w$ecret!",
	})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if !auth.CheckPassword(repo.byULID[user.ULID].PasswordHash, "N3w$ecret!") {
		t.Error("new password does not verify against stored hash")
	}
}

func TestGetByULIDRejectsMalformedID(t *testing.T) {
	svc := NewService(newFakeRepo())
	if _, err := svc.GetByULID(context.Background(), "not-a-ulid"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
