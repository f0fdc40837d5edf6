// Package api assembles the HTTP surface: routing, middleware order and
// handler wiring.
package api

import (
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/smart-navigator/server/internal/api/bind"
	"github.com/smart-navigator/server/internal/api/handlers"
	"github.com/smart-navigator/server/internal/api/middleware"
	"github.com/smart-navigator/server/internal/auth"
	"github.com/smart-navigator/server/internal/config"
	"github.com/smart-navigator/server/internal/domain/events"
	"github.com/smart-navigator/server/internal/domain/locations"
	"github.com/smart-navigator/server/internal/domain/users"
	"github.com/smart-navigator/server/internal/metrics"
	"github.com/smart-navigator/server/internal/storage/postgres"
)

// BuildInfo carries version metadata into the health endpoints.
type BuildInfo struct {
	Version   string
	GitCommit string
}

// NewRouter wires repositories, services, handlers and the middleware
// chain. Middleware order, outermost first: security headers, correlation
// ID, metrics, request logging, rate limiting, auth, CSRF.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool, build BuildInfo) (http.Handler, error) {
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}

	binder := bind.New()
	userService := users.NewService(repo.Users())
	locationService := locations.NewService(repo.Locations())
	eventService := events.NewService(repo.Events(), repo.Locations())

	authHandler := handlers.NewAuthHandler(userService, tokens, binder,
		cfg.Auth.CookieName, cfg.Auth.SessionExpiry, cfg.IsProduction())
	usersHandler := handlers.NewUsersHandler(userService, eventService, binder, authHandler.ClearSessionCookie)
	locationsHandler := handlers.NewLocationsHandler(locationService, binder, cfg.Upload.MaxCSVBytes)
	eventsHandler := handlers.NewEventsHandler(eventService, userService, binder)
	health := handlers.NewHealthChecker(pool, build.Version, build.GitCommit)

	limit := middleware.RateLimit(cfg.RateLimit)
	general := middleware.WithTier(middleware.TierGeneral)
	authTier := middleware.WithTier(middleware.TierAuth)
	writeTier := middleware.WithTier(middleware.TierWrite)
	uploadTier := middleware.WithTier(middleware.TierUpload)

	requireAuth := middleware.RequireAuth(tokens, cfg.Auth.CookieName)
	optionalAuth := middleware.OptionalAuth(tokens, cfg.Auth.CookieName)
	requireAdmin := middleware.RequireAdmin()
	csrf := middleware.RequireCSRF(tokens)
	body := middleware.RequestSize(middleware.DefaultMaxBodySize)
	uploadBody := middleware.RequestSize(middleware.UploadMaxBodySize)

	// Composed per-route stacks. The tier annotation must precede the
	// limiter so the limiter picks the right bucket.
	public := func(h http.HandlerFunc) http.Handler {
		return chain(h, general, limit)
	}
	publicOptional := func(h http.HandlerFunc) http.Handler {
		return chain(h, general, limit, optionalAuth)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return chain(h, general, limit, requireAuth)
	}
	authedWrite := func(h http.HandlerFunc) http.Handler {
		return chain(h, writeTier, limit, requireAuth, csrf, body)
	}
	adminWrite := func(h http.HandlerFunc) http.Handler {
		return chain(h, writeTier, limit, requireAuth, requireAdmin, csrf, body)
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", health.Healthz())
	mux.Handle("GET /readyz", health.Readyz())
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/auth/register", chain(authHandler.Register, authTier, limit, body))
	mux.Handle("POST /api/auth/login", chain(authHandler.Login, authTier, limit, body))
	mux.Handle("POST /api/auth/logout", chain(authHandler.Logout, general, limit, requireAuth, csrf))
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("GET /api/auth/csrf-token", authed(authHandler.CSRFToken))
	mux.Handle("PUT /api/auth/password", authedWrite(authHandler.ChangePassword))

	mux.Handle("GET /api/locations", public(locationsHandler.List))
	mux.Handle("GET /api/locations/nearby", public(locationsHandler.Nearby))
	mux.Handle("GET /api/locations/{id}", public(locationsHandler.Get))
	mux.Handle("POST /api/locations", adminWrite(locationsHandler.Create))
	mux.Handle("PUT /api/locations/{id}", adminWrite(locationsHandler.Update))
	mux.Handle("DELETE /api/locations/{id}", adminWrite(locationsHandler.Delete))
	mux.Handle("POST /api/locations/import",
		chain(locationsHandler.Import, uploadTier, limit, requireAuth, requireAdmin, csrf, uploadBody))

	mux.Handle("GET /api/events", publicOptional(eventsHandler.List))
	mux.Handle("GET /api/events/upcoming", public(eventsHandler.Upcoming))
	mux.Handle("GET /api/events/recommended", authed(eventsHandler.Recommended))
	mux.Handle("GET /api/events/{id}", publicOptional(eventsHandler.Get))
	mux.Handle("POST /api/events/{id}/register", authedWrite(eventsHandler.Register))
	mux.Handle("DELETE /api/events/{id}/register", authedWrite(eventsHandler.Unregister))
	mux.Handle("POST /api/events", adminWrite(eventsHandler.Create))
	mux.Handle("PUT /api/events/{id}", adminWrite(eventsHandler.Update))
	mux.Handle("DELETE /api/events/{id}", adminWrite(eventsHandler.Delete))

	mux.Handle("GET /api/users/profile", authed(usersHandler.GetProfile))
	mux.Handle("PUT /api/users/profile", authedWrite(usersHandler.UpdateProfile))
	mux.Handle("DELETE /api/users/profile", chain(usersHandler.DeleteProfile, writeTier, limit, requireAuth, csrf))
	mux.Handle("GET /api/users/events", authed(usersHandler.MyEvents))

	var handler http.Handler = mux
	handler = middleware.RequestLogging()(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.CorrelationID(logger)(handler)
	handler = middleware.SecurityHeaders(cfg.IsProduction())(handler)
	return handler, nil
}

// chain wraps h with the given middleware, first entry outermost.
func chain(h http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	var handler http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}
