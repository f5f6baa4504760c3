package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/handler"    // schedule handlers
	"github.com/iliyamo/cinema-showtime-scheduler/internal/middleware" // JWT + role middlewares
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// RegisterOwner registers OWNER-scoped endpoints under /v1.
// All routes require a valid JWT and OWNER role, and pass through the
// rate limiter after authentication so limits can be keyed per user.
func RegisterOwner(e *echo.Echo, s *handler.ShowtimeHandler, h *handler.HallHandler, m *handler.MovieHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOwner),
		limiter,
	)

	// ---- Catalogue ----
	g.POST("/halls", h.CreateHall)
	g.POST("/movies", m.CreateMovie)

	// ---- Showtimes ----
	g.POST("/showtimes", s.Create)
	// a batch counts as one request against the limiter
	g.POST("/showtimes/batch", s.CreateBatch)
	g.PATCH("/showtimes/:id", s.Update)
	g.DELETE("/showtimes/:id", s.Cancel)
}

// RegisterStaff registers the read endpoints available to every
// authenticated role.
func RegisterStaff(e *echo.Echo, s *handler.ShowtimeHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOwner, model.RoleStaff),
	)
	g.GET("/showtimes/:id", s.Get)
	g.GET("/halls/:id/conflicts", s.Conflicts)
}
