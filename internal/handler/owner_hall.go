package handler // handler package contains the hall handlers

import (
    "context"  // context carries request deadlines to the repository
    "errors"   // errors compares repository sentinels
    "log/slog" // slog logs unexpected failures
    "net/http" // http defines status code constants
    "strings"  // strings trims text input

    "github.com/labstack/echo/v4" // echo framework supplies request context

    "github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/middleware" // authenticated user lookup
    "github.com/iliyamo/cinema-showtime-scheduler/internal/model"      // hall model
    "github.com/iliyamo/cinema-showtime-scheduler/internal/repository" // repository sentinels
)

// HallStore is the hall persistence used by HallHandler.
// *repository.HallRepo implements it.
type HallStore interface {
    HallOwnership
    Create(ctx context.Context, h *model.Hall) error
    GetByID(ctx context.Context, id uint64) (*model.Hall, error)
    List(ctx context.Context) ([]*model.Hall, error)
}

// HallHandler serves hall endpoints.  Halls are created by owners and
// listed publicly.
type HallHandler struct {
    Log   *slog.Logger
    Halls HallStore
}

func NewHallHandler(log *slog.Logger, halls HallStore) *HallHandler {
    if halls == nil { // the handler is useless without a store
        panic("nil repository passed to NewHallHandler")
    }
    return &HallHandler{Log: log, Halls: halls}
}

type hallReq struct {
    Name        string  `json:"name" validate:"required,max=100"`
    Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// CreateHall handles POST /v1/halls.  The authenticated owner becomes
// the hall owner.
func (h *HallHandler) CreateHall(c echo.Context) error {
    ownerID, ok := middleware.UserID(c) // retrieve authenticated user ID
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "unauthorized"})
    }
    var req hallReq
    if ok, err := bindAndValidate(c, &req); !ok {
        return err
    }
    name := strings.TrimSpace(req.Name)
    if name == "" { // whitespace-only names pass the required rule
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_BODY", "message": "name is required"})
    }
    hall := &model.Hall{OwnerID: ownerID, Name: name}
    if req.Description != nil && strings.TrimSpace(*req.Description) != "" {
        d := strings.TrimSpace(*req.Description)
        hall.Description = &d
    }

    if err := h.Halls.Create(c.Request().Context(), hall); err != nil {
        if errors.Is(err, repository.ErrConflict) { // duplicate name for this owner
            return c.JSON(http.StatusConflict, echo.Map{"error": "HALL_EXISTS", "message": "a hall with this name already exists"})
        }
        return h.storageError(c, err)
    }
    return c.JSON(http.StatusCreated, hall)
}

// GetHall handles GET /v1/halls/:id.
func (h *HallHandler) GetHall(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return badID(c, "hall id")
    }
    hall, err := h.Halls.GetByID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, repository.ErrHallNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "NOT_FOUND", "message": "hall not found"})
        }
        return h.storageError(c, err)
    }
    return c.JSON(http.StatusOK, hall)
}

// ListHalls handles GET /v1/halls.
func (h *HallHandler) ListHalls(c echo.Context) error {
    halls, err := h.Halls.List(c.Request().Context())
    if err != nil {
        return h.storageError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"halls": halls})
}

// storageError reports a repository failure as 503 when it is retryable
// and 500 otherwise.
func (h *HallHandler) storageError(c echo.Context, err error) error {
    return writeStorageError(c, h.Log, err)
}

func writeStorageError(c echo.Context, log *slog.Logger, err error) error {
    if errors.Is(err, repository.ErrTransient) {
        log.Warn("transient storage error", slog.String("path", c.Path()), sl.Err(err))
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "TRANSIENT_STORAGE", "message": "storage temporarily unavailable"})
    }
    log.Error("storage error", slog.String("path", c.Path()), sl.Err(err))
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": "internal error"})
}
