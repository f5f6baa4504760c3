package handler

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/model"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/repository"
)

// MovieStore is the movie persistence used by MovieHandler.
type MovieStore interface {
    Create(ctx context.Context, m *model.Movie) error
    GetByID(ctx context.Context, id uint64) (*model.Movie, error)
    List(ctx context.Context) ([]model.Movie, error)
}

// MovieHandler serves the movie catalogue.  A movie's runtime is the
// reference duration of every showtime scheduled for it.
type MovieHandler struct {
    Log    *slog.Logger
    Movies MovieStore
    // MaxDurationMin caps the runtime so at least one showtime of the
    // movie can satisfy the scheduling rules.
    MaxDurationMin int
}

func NewMovieHandler(log *slog.Logger, movies MovieStore, maxDurationMin int) *MovieHandler {
    if movies == nil {
        panic("nil repository passed to NewMovieHandler")
    }
    return &MovieHandler{Log: log, Movies: movies, MaxDurationMin: maxDurationMin}
}

type movieReq struct {
    Title       string `json:"title" validate:"required,max=200"`
    DurationMin int    `json:"duration_min" validate:"required,gt=0"`
}

// CreateMovie handles POST /v1/movies.
func (h *MovieHandler) CreateMovie(c echo.Context) error {
    var req movieReq
    if ok, err := bindAndValidate(c, &req); !ok {
        return err
    }
    title := strings.TrimSpace(req.Title)
    if title == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_BODY", "message": "title is required"})
    }
    if h.MaxDurationMin > 0 && req.DurationMin > h.MaxDurationMin {
        return c.JSON(http.StatusBadRequest, echo.Map{
            "error":   "INVALID_BODY",
            "message": "duration_min exceeds the longest schedulable showtime",
        })
    }

    m := &model.Movie{Title: title, DurationMin: req.DurationMin}
    if err := h.Movies.Create(c.Request().Context(), m); err != nil {
        return writeStorageError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, m)
}

// GetMovie handles GET /v1/movies/:id.
func (h *MovieHandler) GetMovie(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return badID(c, "movie id")
    }
    m, err := h.Movies.GetByID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, repository.ErrMovieNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "NOT_FOUND", "message": "movie not found"})
        }
        return writeStorageError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, m)
}

// ListMovies handles GET /v1/movies.
func (h *MovieHandler) ListMovies(c echo.Context) error {
    movies, err := h.Movies.List(c.Request().Context())
    if err != nil {
        return writeStorageError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"movies": movies})
}
