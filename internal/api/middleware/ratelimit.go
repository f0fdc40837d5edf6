package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/config"
	"github.com/smart-navigator/server/internal/metrics"
)

type RateLimitTier string

const (
	TierGeneral RateLimitTier = "general"
	TierAuth    RateLimitTier = "auth"
	TierWrite   RateLimitTier = "write"
	TierUpload  RateLimitTier = "upload"
)

type rateLimitKey string

const rateLimitTierKey rateLimitKey = "rateLimitTier"

// WithTier marks every request through a route with a rate tier; the
// outer RateLimit middleware picks it up.
func WithTier(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), rateLimitTierKey, tier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type tierPolicy struct {
	limit  int
	window time.Duration
}

// RateLimit enforces per-IP token buckets per tier. Requests without a
// tier annotation fall under the general tier.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	store := newLimiterStore(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			tier := TierGeneral
			if value, ok := r.Context().Value(rateLimitTierKey).(RateLimitTier); ok {
				tier = value
			}

			limiter, policy := store.limiter(tier, clientIP(r))
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow() {
				metrics.RateLimitedTotal.WithLabelValues(string(tier)).Inc()
				retryAfter := int(policy.window / time.Duration(policy.limit) / time.Second)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respond.Error(w, r, http.StatusTooManyRequests, "too many requests, please try again later", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	policies map[RateLimitTier]tierPolicy
	stop     chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	store := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		policies: map[RateLimitTier]tierPolicy{
			TierGeneral: {limit: cfg.GeneralPer15Minutes, window: 15 * time.Minute},
			TierAuth:    {limit: cfg.AuthPer15Minutes, window: 15 * time.Minute},
			TierWrite:   {limit: cfg.WritePer5Minutes, window: 5 * time.Minute},
			TierUpload:  {limit: cfg.UploadPer15Minutes, window: 15 * time.Minute},
		},
		stop: make(chan struct{}),
	}

	// Entries not seen for a while are dropped to keep memory bounded.
	go store.cleanupLoop()

	return store
}

func (s *limiterStore) limiter(tier RateLimitTier, key string) (*rate.Limiter, tierPolicy) {
	policy, ok := s.policies[tier]
	if !ok || policy.limit <= 0 {
		return nil, tierPolicy{}
	}

	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter, policy
	}

	interval := policy.window / time.Duration(policy.limit)
	limiter := rate.NewLimiter(rate.Every(interval), policy.limit)
	s.limiters[lookup] = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter, policy
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

func (s *limiterStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ttl := 30 * time.Minute
	now := time.Now()
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > ttl {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) Stop() {
	close(s.stop)
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
