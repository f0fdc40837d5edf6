package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	env := setupTestEnv(t)
	student := registerUser(t, env, "Grace Hopper", "grace@campus.edu")

	t.Run("me returns the account", func(t *testing.T) {
		resp := student.do(t, http.MethodGet, "/api/auth/me", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := decodeData(t, resp)
		require.Equal(t, "grace@campus.edu", data["email"])
		require.Equal(t, "student", data["role"])
	})

	t.Run("profile update persists", func(t *testing.T) {
		resp := student.do(t, http.MethodPut, "/api/users/profile", map[string]any{
			"bio":       "Compiler pioneer",
			"interests": []string{"computing", "navy"},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := decodeData(t, resp)
		require.Equal(t, "Compiler pioneer", data["bio"])
	})

	t.Run("unauthenticated me is rejected", func(t *testing.T) {
		resp, err := http.Get(env.Server.URL + "/api/auth/me")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

// TestAccountDeletionCascades verifies that deleting an account removes its
// event registrations.
func TestAccountDeletionCascades(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	env := setupTestEnv(t)

	admin := registerAdmin(t, env, "Admin", "admin@campus.edu")
	eventID := createEvent(t, admin, 10)
	student := registerUser(t, env, "Leaver", "leaver@campus.edu")

	resp := student.do(t, http.MethodPost, "/api/events/"+eventID+"/register", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = student.do(t, http.MethodDelete, "/api/users/profile", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var count int
	require.NoError(t, env.Pool.QueryRow(env.Context,
		`SELECT COUNT(*) FROM event_attendees`).Scan(&count))
	require.Zero(t, count, "attendee rows must cascade away with the account")

	// The stale session no longer works.
	resp = student.do(t, http.MethodGet, "/api/auth/me", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventDiscovery(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	env := setupTestEnv(t)
	admin := registerAdmin(t, env, "Admin", "admin@campus.edu")

	createTagged := func(title, category string, tags []string) {
		resp := admin.do(t, http.MethodPost, "/api/events", map[string]any{
			"title":            title,
			"category":         category,
			"dateTime":         time.Now().Add(24 * time.Hour).Format(time.RFC3339),
			"externalLocation": "Quad",
			"tags":             tags,
			"organizer":        map[string]any{"name": "Campus Life", "email": "life@campus.edu"},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	createTagged("Chess Open", "social", []string{"chess", "games"})
	createTagged("Robotics Demo", "workshop", []string{"robotics"})

	t.Run("category filter", func(t *testing.T) {
		resp, err := http.Get(env.Server.URL + "/api/events?category=workshop")
		require.NoError(t, err)
		defer resp.Body.Close()
		items, _ := decodeData(t, resp)["items"].([]any)
		require.Len(t, items, 1)
	})

	t.Run("recommendations follow interests", func(t *testing.T) {
		student := registerUser(t, env, "Player", "player@campus.edu")
		resp := student.do(t, http.MethodPut, "/api/users/profile", map[string]any{
			"interests": []string{"chess"},
		})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = student.do(t, http.MethodGet, "/api/events/recommended", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		items, _ := decodeData(t, resp)["events"].([]any)
		require.Len(t, items, 1)
		first := items[0].(map[string]any)
		require.Equal(t, "Chess Open", first["title"])
	})
}
