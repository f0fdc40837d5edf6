package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	checker := NewHealthChecker(nil, "1.2.3", "abcdef0")

	rec := httptest.NewRecorder()
	checker.Healthz()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("expected ok status, got %v", response["status"])
	}
	if response["version"] != "1.2.3" {
		t.Errorf("expected version in the payload, got %v", response["version"])
	}
}

func TestReadyzWithoutPool(t *testing.T) {
	checker := NewHealthChecker(nil, "1.2.3", "")

	rec := httptest.NewRecorder()
	checker.Readyz()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a database pool, got %d", rec.Code)
	}
}
