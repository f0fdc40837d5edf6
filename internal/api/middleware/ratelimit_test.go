package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smart-navigator/server/internal/config"
)

func rateLimitedHandler(cfg config.RateLimitConfig, tier RateLimitTier) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return WithTier(tier)(RateLimit(cfg)(inner))
}

func TestRateLimitExhaustsTier(t *testing.T) {
	cfg := config.RateLimitConfig{UploadPer15Minutes: 3}
	handler := rateLimitedHandler(cfg, TierUpload)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/locations/import", nil)
		r.RemoteAddr = "203.0.113.7:4000"
		handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/locations/import", nil)
	r.RemoteAddr = "203.0.113.7:4000"
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After")
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	cfg := config.RateLimitConfig{UploadPer15Minutes: 1}
	handler := rateLimitedHandler(cfg, TierUpload)

	for _, addr := range []string{"203.0.113.7:4000", "203.0.113.8:4000"} {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/locations/import", nil)
		r.RemoteAddr = addr
		handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusOK {
			t.Errorf("first request from %s status = %d, want 200", addr, rec.Code)
		}
	}
}

func TestRateLimitSkipsHealthEndpoints(t *testing.T) {
	cfg := config.RateLimitConfig{GeneralPer15Minutes: 1}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimit(cfg)(inner)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/healthz", nil)
		r.RemoteAddr = "203.0.113.7:4000"
		handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("healthz request %d status = %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitZeroConfigDisablesTier(t *testing.T) {
	handler := rateLimitedHandler(config.RateLimitConfig{}, TierWrite)

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/locations", nil)
		r.RemoteAddr = "203.0.113.7:4000"
		handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("unlimited tier request %d status = %d", i+1, rec.Code)
		}
	}
}
