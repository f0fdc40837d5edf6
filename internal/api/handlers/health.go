package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type HealthChecker struct {
	pool      *pgxpool.Pool
	version   string
	gitCommit string
}

func NewHealthChecker(pool *pgxpool.Pool, version, gitCommit string) *HealthChecker {
	return &HealthChecker{pool: pool, version: version, gitCommit: gitCommit}
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Healthz reports process liveness only; it never touches the database.
func (h *HealthChecker) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, healthResponse{
			Status:    "ok",
			Version:   h.version,
			GitCommit: h.gitCommit,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Readyz reports readiness to serve traffic, including database
// connectivity.
func (h *HealthChecker) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := healthResponse{
			Status:    "ok",
			Version:   h.version,
			GitCommit: h.gitCommit,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		status := http.StatusOK

		if h.pool == nil {
			response.Status = "unavailable"
			status = http.StatusServiceUnavailable
		} else if err := h.pool.Ping(r.Context()); err != nil {
			response.Status = "database unreachable"
			status = http.StatusServiceUnavailable
		}
		writeHealth(w, status, response)
	}
}

func writeHealth(w http.ResponseWriter, status int, response healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
