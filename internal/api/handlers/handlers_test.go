package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smart-navigator/server/internal/api/bind"
	"github.com/smart-navigator/server/internal/api/middleware"
	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/auth"
	"github.com/smart-navigator/server/internal/domain/events"
	"github.com/smart-navigator/server/internal/domain/locations"
	"github.com/smart-navigator/server/internal/domain/users"
)

const testCookieName = "nav_token"

// fakeUserRepo is an in-memory users.Repository.
type fakeUserRepo struct {
	mu      sync.Mutex
	byULID  map[string]*users.User
	byEmail map[string]*users.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byULID: map[string]*users.User{}, byEmail: map[string]*users.User{}}
}

func (f *fakeUserRepo) Create(_ context.Context, user *users.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.byEmail[user.Email]; taken {
		return users.ErrEmailTaken
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.byULID[user.ULID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) GetByULID(_ context.Context, ulid string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byULID[ulid]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byEmail[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) Update(_ context.Context, ulid string, params users.UpdateParams) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byULID[ulid]
	if !ok {
		return nil, users.ErrNotFound
	}
	if params.Name != nil {
		user.Name = *params.Name
	}
	if params.Interests != nil {
		user.Interests = *params.Interests
	}
	if params.Bio != nil {
		user.Bio = *params.Bio
	}
	if params.AvatarURL != nil {
		user.AvatarURL = *params.AvatarURL
	}
	user.UpdatedAt = time.Now()
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, ulid, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byULID[ulid]
	if !ok {
		return users.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, ulid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byULID[ulid]
	if !ok {
		return users.ErrNotFound
	}
	delete(f.byULID, ulid)
	delete(f.byEmail, user.Email)
	return nil
}

// fakeLocationRepo is an in-memory locations.Repository.
type fakeLocationRepo struct {
	mu sync.Mutex
	m  map[string]*locations.Location
}

func newFakeLocationRepo() *fakeLocationRepo {
	return &fakeLocationRepo{m: map[string]*locations.Location{}}
}

func (f *fakeLocationRepo) Create(_ context.Context, loc *locations.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc.CreatedAt = time.Now()
	loc.UpdatedAt = loc.CreatedAt
	f.m[loc.ULID] = loc
	return nil
}

func (f *fakeLocationRepo) CreateBatch(_ context.Context, locs []*locations.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, loc := range locs {
		f.m[loc.ULID] = loc
	}
	return nil
}

func (f *fakeLocationRepo) GetByULID(_ context.Context, ulid string) (*locations.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, ok := f.m[ulid]
	if !ok {
		return nil, locations.ErrNotFound
	}
	copied := *loc
	return &copied, nil
}

func (f *fakeLocationRepo) List(_ context.Context, _ locations.Filters) ([]locations.Location, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]locations.Location, 0, len(f.m))
	for _, loc := range f.m {
		out = append(out, *loc)
	}
	return out, len(out), nil
}

func (f *fakeLocationRepo) Nearby(_ context.Context, _ locations.NearbyQuery) ([]locations.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]locations.Location, 0, len(f.m))
	for _, loc := range f.m {
		out = append(out, *loc)
	}
	return out, nil
}

func (f *fakeLocationRepo) RoomsInBuilding(_ context.Context, buildingULID string) ([]locations.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rooms []locations.Location
	for _, loc := range f.m {
		if loc.Type == locations.TypeRoom && loc.BuildingULID != nil && *loc.BuildingULID == buildingULID {
			rooms = append(rooms, *loc)
		}
	}
	return rooms, nil
}

func (f *fakeLocationRepo) Update(_ context.Context, ulid string, params locations.UpdateParams) (*locations.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, ok := f.m[ulid]
	if !ok {
		return nil, locations.ErrNotFound
	}
	if params.Name != nil {
		loc.Name = *params.Name
	}
	if params.Description != nil {
		loc.Description = *params.Description
	}
	if params.Type != nil {
		loc.Type = *params.Type
	}
	if params.Tags != nil {
		loc.Tags = *params.Tags
	}
	if params.IsActive != nil {
		loc.IsActive = *params.IsActive
	}
	loc.UpdatedAt = time.Now()
	copied := *loc
	return &copied, nil
}

func (f *fakeLocationRepo) Delete(_ context.Context, ulid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.m[ulid]; !ok {
		return locations.ErrNotFound
	}
	delete(f.m, ulid)
	return nil
}

// fakeEventRepo is an in-memory events.Repository enforcing capacity and
// duplicate checks the way the real storage layer does.
type fakeEventRepo struct {
	mu        sync.Mutex
	users     *fakeUserRepo
	events    map[string]*events.Event
	attendees map[string]map[string]bool
}

func newFakeEventRepo(userRepo *fakeUserRepo) *fakeEventRepo {
	return &fakeEventRepo{
		users:     userRepo,
		events:    map[string]*events.Event{},
		attendees: map[string]map[string]bool{},
	}
}

func (f *fakeEventRepo) Create(_ context.Context, event *events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	f.events[event.ULID] = event
	f.attendees[event.ULID] = map[string]bool{}
	return nil
}

func (f *fakeEventRepo) GetByULID(_ context.Context, ulid string) (*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[ulid]
	if !ok {
		return nil, events.ErrNotFound
	}
	copied := *event
	copied.AttendeeCount = len(f.attendees[ulid])
	copied.AvailableSpots = copied.Capacity - copied.AttendeeCount
	if copied.AvailableSpots < 0 {
		copied.AvailableSpots = 0
	}
	return &copied, nil
}

func (f *fakeEventRepo) List(_ context.Context, _ events.Filters) ([]events.Event, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Event, 0, len(f.events))
	for _, event := range f.events {
		out = append(out, *event)
	}
	return out, len(out), nil
}

func (f *fakeEventRepo) Update(_ context.Context, ulid string, params events.UpdateParams) (*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[ulid]
	if !ok {
		return nil, events.ErrNotFound
	}
	if params.Title != nil {
		event.Title = *params.Title
	}
	if params.Description != nil {
		event.Description = *params.Description
	}
	if params.Category != nil {
		event.Category = *params.Category
	}
	if params.Capacity != nil {
		event.Capacity = *params.Capacity
	}
	if params.LocationID != nil {
		if *params.LocationID == "" {
			event.LocationULID = nil
		} else {
			event.LocationULID = params.LocationID
			event.ExternalLocation = ""
		}
	}
	if params.ExternalLocation != nil {
		event.ExternalLocation = *params.ExternalLocation
		event.LocationULID = nil
	}
	event.UpdatedAt = time.Now()
	copied := *event
	return &copied, nil
}

func (f *fakeEventRepo) Delete(_ context.Context, ulid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[ulid]; !ok {
		return events.ErrNotFound
	}
	delete(f.events, ulid)
	delete(f.attendees, ulid)
	return nil
}

func (f *fakeEventRepo) Register(_ context.Context, eventULID, userULID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[eventULID]
	if !ok {
		return events.ErrNotFound
	}
	if f.attendees[eventULID][userULID] {
		return events.ErrAlreadyRegistered
	}
	if _, err := f.users.GetByULID(context.Background(), userULID); err != nil {
		return events.ErrUnknownAttendee
	}
	if len(f.attendees[eventULID]) >= event.Capacity {
		return events.ErrEventFull
	}
	f.attendees[eventULID][userULID] = true
	return nil
}

func (f *fakeEventRepo) Unregister(_ context.Context, eventULID, userULID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attendees[eventULID], userULID)
	return nil
}

func (f *fakeEventRepo) IsRegistered(_ context.Context, eventULID, userULID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attendees[eventULID][userULID], nil
}

func (f *fakeEventRepo) ListRegisteredByUser(_ context.Context, userULID string, upcomingOnly bool) ([]events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for ulid, attendees := range f.attendees {
		if !attendees[userULID] {
			continue
		}
		event := f.events[ulid]
		if upcomingOnly && event.StartTime.Before(time.Now()) {
			continue
		}
		out = append(out, *event)
	}
	return out, nil
}

func (f *fakeEventRepo) Recommended(_ context.Context, interests []string, limit int) ([]events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, event := range f.events {
		if len(out) >= limit {
			break
		}
		for _, interest := range interests {
			matched := false
			for _, tag := range event.Tags {
				if tag == interest {
					out = append(out, *event)
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEventRepo) Upcoming(_ context.Context, limit int) ([]events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, event := range f.events {
		if len(out) >= limit {
			break
		}
		if event.StartTime.After(time.Now()) {
			out = append(out, *event)
		}
	}
	return out, nil
}

// testEnv assembles handlers over in-memory repositories.
type testEnv struct {
	userRepo  *fakeUserRepo
	locRepo   *fakeLocationRepo
	eventRepo *fakeEventRepo

	users     *users.Service
	locations *locations.Service
	events    *events.Service

	tokens *auth.TokenService

	auth          *AuthHandler
	usersHandler  *UsersHandler
	locHandler    *LocationsHandler
	eventsHandler *EventsHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenService("test-master-secret-for-handlers", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}

	userRepo := newFakeUserRepo()
	env := &testEnv{
		userRepo:  userRepo,
		locRepo:   newFakeLocationRepo(),
		eventRepo: newFakeEventRepo(userRepo),
		tokens:    tokens,
	}
	env.users = users.NewService(env.userRepo)
	env.locations = locations.NewService(env.locRepo)
	env.events = events.NewService(env.eventRepo, env.locRepo)

	binder := bind.New()
	env.auth = NewAuthHandler(env.users, tokens, binder, testCookieName, time.Hour, false)
	env.usersHandler = NewUsersHandler(env.users, env.events, binder, env.auth.ClearSessionCookie)
	env.locHandler = NewLocationsHandler(env.locations, binder, 5<<20)
	env.eventsHandler = NewEventsHandler(env.events, env.users, binder)
	return env
}

// seedUser registers an account directly through the service.
func (env *testEnv) seedUser(t *testing.T, email string) *users.User {
	t.Helper()
	user, err := env.users.Register(context.Background(), users.RegisterInput{
		Name:        "Test User",
		Email:       email,
		Password:    "Sup3r$ecret!",
		AcceptTerms: true,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

func (env *testEnv) seedAdmin(t *testing.T, email string) *users.User {
	t.Helper()
	user := env.seedUser(t, email)
	env.userRepo.byULID[user.ULID].Role = string(auth.RoleAdmin)
	user.Role = string(auth.RoleAdmin)
	return user
}

// sessionCookie issues a valid session cookie for the user.
func (env *testEnv) sessionCookie(t *testing.T, user *users.User) *http.Cookie {
	t.Helper()
	token, err := env.tokens.IssueSession(user.ULID, user.Email, user.Role, 0)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return &http.Cookie{Name: testCookieName, Value: token}
}

// do runs the handler behind RequireAuth when a cookie is given, matching
// the router's wiring for protected routes.
func (env *testEnv) do(handler http.HandlerFunc, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var h http.Handler = handler
	if cookie != nil {
		req.AddCookie(cookie)
		h = middleware.RequireAuth(env.tokens, testCookieName)(handler)
	}
	h.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) respond.Envelope {
	t.Helper()
	var envelope respond.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return envelope
}

func dataMap(t *testing.T, envelope respond.Envelope) map[string]any {
	t.Helper()
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %T", envelope.Data)
	}
	return data
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
