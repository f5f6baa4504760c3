package router // package router defines how HTTP routes are registered for the API

import (
	"net/http" // metrics handler type

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/cinema-showtime-scheduler/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/cinema-showtime-scheduler/internal/middleware" // import middleware for JWT authentication and role enforcement
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"      // roles
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: liveness, readiness and, when metrics is non-nil,
// the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout does not require JWT authentication; a refresh token in the
	// body is enough to end that session.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleOwner, model.RoleStaff))
	auth.GET("/me", a.Me)

	e.POST("/v1/logout", a.Logout)
}

// RegisterPublic registers unauthenticated browse endpoints.  The hall
// schedule goes through the response cache; conflict checks never read
// from it.
func RegisterPublic(e *echo.Echo, s *handler.ShowtimeHandler, h *handler.HallHandler, m *handler.MovieHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/halls", h.ListHalls)
	e.GET("/v1/halls/:id", h.GetHall)
	e.GET("/v1/halls/:id/showtimes", s.ListByHall, cache)
	e.GET("/v1/movies", m.ListMovies)
	e.GET("/v1/movies/:id", m.GetMovie)
}
