package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/smart-navigator/server/internal/api"
	"github.com/smart-navigator/server/internal/config"
	"github.com/smart-navigator/server/internal/storage/postgres"
)

const (
	testCookieName = "nav_token"
	csrfHeader     = "X-CSRF-Token"
	testPassword   = "Sup3r$ecret!"
)

type testEnv struct {
	Context context.Context
	DBURL   string
	Pool    *pgxpool.Pool
	Server  *httptest.Server
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := tcpostgres.Run(
		ctx,
		"postgis/postgis:16-3.4",
		tcpostgres.WithDatabase("navigator"),
		tcpostgres.WithUsername("navigator"),
		tcpostgres.WithPassword("navigator_dev"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsPath := filepath.Join(projectRoot(t), "internal", "storage", "postgres", "migrations")
	require.NoError(t, migrateWithRetry(dbURL, migrationsPath, 10*time.Second))

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	handler, err := api.NewRouter(testConfig(dbURL), zerolog.New(io.Discard), pool, api.BuildInfo{Version: "test"})
	require.NoError(t, err)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{Context: ctx, DBURL: dbURL, Pool: pool, Server: server}
}

func testConfig(dbURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			BaseURL: "http://localhost",
		},
		Database: config.DatabaseConfig{
			URL:            dbURL,
			MaxConnections: 5,
			MaxIdle:        2,
		},
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret-32-bytes-minimum----",
			SessionExpiry: time.Hour,
			CookieName:    testCookieName,
		},
		RateLimit: config.RateLimitConfig{
			GeneralPer15Minutes: 100000,
			AuthPer15Minutes:    100000,
			WritePer5Minutes:    100000,
			UploadPer15Minutes:  100000,
		},
		Upload: config.UploadConfig{
			MaxCSVBytes: 5 << 20,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "json",
		},
		Environment: "test",
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func migrateWithRetry(databaseURL string, migrationsPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := postgres.MigrateUp(databaseURL, migrationsPath); err != nil {
			if time.Now().After(deadline) {
				return err
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		return nil
	}
}

// session is an authenticated API client bound to one account.
type session struct {
	env    *testEnv
	Cookie *http.Cookie
	CSRF   string
	UserID string
}

// registerUser creates an account through the API and captures its session
// cookie and CSRF token.
func registerUser(t *testing.T, env *testEnv, name, email string) *session {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"name":        name,
		"email":       email,
		"password":    testPassword,
		"acceptTerms": true,
	})
	require.NoError(t, err)

	resp, err := http.Post(env.Server.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var envelope struct {
		Data struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
			CSRFToken string `json:"csrfToken"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == testCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "registration must set the session cookie")

	return &session{
		env:    env,
		Cookie: cookie,
		CSRF:   envelope.Data.CSRFToken,
		UserID: envelope.Data.User.ID,
	}
}

// registerAdmin registers an account and promotes it to admin directly in
// the database, then logs in again so the session carries the admin role.
func registerAdmin(t *testing.T, env *testEnv, name, email string) *session {
	t.Helper()

	s := registerUser(t, env, name, email)
	_, err := env.Pool.Exec(env.Context, `UPDATE users SET role = 'admin' WHERE ulid = $1`, s.UserID)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{"email": email, "password": testPassword})
	require.NoError(t, err)
	resp, err := http.Post(env.Server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data struct {
			CSRFToken string `json:"csrfToken"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	for _, c := range resp.Cookies() {
		if c.Name == testCookieName {
			s.Cookie = c
		}
	}
	s.CSRF = envelope.Data.CSRFToken
	return s
}

// do sends an authenticated request with the session cookie and CSRF token.
func (s *session) do(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.env.Server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrfHeader, s.CSRF)
	req.AddCookie(s.Cookie)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}
