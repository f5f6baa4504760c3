package handler

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/middleware"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/model"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/repository"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/schedule"
)

// ShowtimeService is the scheduling core as seen by the HTTP layer.
// *schedule.Service implements it.
type ShowtimeService interface {
    Create(ctx context.Context, in schedule.CreateInput) (*model.Showtime, error)
    Update(ctx context.Context, id uint64, in schedule.UpdateInput) (*model.Showtime, error)
    Cancel(ctx context.Context, id uint64, by *uint64) (*model.Showtime, error)
    Get(ctx context.Context, id uint64) (*model.Showtime, error)
    ListByHall(ctx context.Context, hallID uint64) ([]model.Showtime, error)
    FindConflicts(ctx context.Context, hallID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error)
    CreateMany(ctx context.Context, items []schedule.CreateInput) (*schedule.BatchResult, error)
}

// HallOwnership resolves whether a hall belongs to a user.
// *repository.HallRepo implements it.
type HallOwnership interface {
    GetByIDAndOwner(ctx context.Context, id, ownerID uint64) (*model.Hall, error)
}

// ShowtimeHandler serves the showtime endpoints.  Every write is limited
// to the owner of the hall being scheduled.
type ShowtimeHandler struct {
    Log      *slog.Logger
    Schedule ShowtimeService
    Halls    HallOwnership
}

func NewShowtimeHandler(log *slog.Logger, svc ShowtimeService, halls HallOwnership) *ShowtimeHandler {
    if svc == nil || halls == nil {
        panic("nil dependency passed to NewShowtimeHandler")
    }
    return &ShowtimeHandler{Log: log, Schedule: svc, Halls: halls}
}

// ----- DTOs -----

type showtimeReq struct {
    HallID   uint64 `json:"hall_id" validate:"required"`
    MovieID  uint64 `json:"movie_id" validate:"required"`
    StartsAt string `json:"starts_at" validate:"required"`
    EndsAt   string `json:"ends_at,omitempty"`
    Status   string `json:"status,omitempty"`
}

type showtimePatchReq struct {
    HallID   *uint64 `json:"hall_id,omitempty" validate:"omitempty,gt=0"`
    MovieID  *uint64 `json:"movie_id,omitempty" validate:"omitempty,gt=0"`
    StartsAt *string `json:"starts_at,omitempty"`
    EndsAt   *string `json:"ends_at,omitempty"`
    Status   *string `json:"status,omitempty"`
}

type batchReq struct {
    Items []showtimeReq `json:"items" validate:"required,min=1"`
}

// toInput converts a request body into a create input.  Timestamps that
// do not parse are reported as INVALID_TIMESTAMP.
func (r showtimeReq) toInput(by uint64) (schedule.CreateInput, error) {
    in := schedule.CreateInput{HallID: r.HallID, MovieID: r.MovieID, Status: r.Status, By: &by}
    start, err := parseTimestamp("starts_at", r.StartsAt)
    if err != nil {
        return in, err
    }
    in.StartsAt = start
    if r.EndsAt != "" {
        end, err := parseTimestamp("ends_at", r.EndsAt)
        if err != nil {
            return in, err
        }
        in.EndsAt = &end
    }
    return in, nil
}

func (r showtimePatchReq) toInput(by uint64) (schedule.UpdateInput, error) {
    in := schedule.UpdateInput{HallID: r.HallID, MovieID: r.MovieID, Status: r.Status, By: &by}
    if r.StartsAt != nil {
        t, err := parseTimestamp("starts_at", *r.StartsAt)
        if err != nil {
            return in, err
        }
        in.StartsAt = &t
    }
    if r.EndsAt != nil {
        t, err := parseTimestamp("ends_at", *r.EndsAt)
        if err != nil {
            return in, err
        }
        in.EndsAt = &t
    }
    return in, nil
}

// requireHall checks that the caller owns the hall.  Halls of other
// owners are reported as missing.
func (h *ShowtimeHandler) requireHall(ctx context.Context, ownerID, hallID uint64) error {
    _, err := h.Halls.GetByIDAndOwner(ctx, hallID, ownerID)
    switch {
    case err == nil:
        return nil
    case errors.Is(err, repository.ErrHallNotFound):
        return &schedule.NotFoundError{Resource: "hall", ID: hallID}
    case errors.Is(err, repository.ErrTransient):
        return &schedule.TransientError{Op: "handler.requireHall", Err: err}
    }
    return err
}

// Create handles POST /v1/showtimes.
func (h *ShowtimeHandler) Create(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "unauthorized"})
    }
    var req showtimeReq
    if ok, err := bindAndValidate(c, &req); !ok {
        return err
    }
    in, err := req.toInput(uid)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }

    ctx := c.Request().Context()
    if err := h.requireHall(ctx, uid, in.HallID); err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    st, err := h.Schedule.Create(ctx, in)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, st)
}

// Update handles PATCH /v1/showtimes/:id.  Moving a showtime to another
// hall requires owning both halls.
func (h *ShowtimeHandler) Update(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "unauthorized"})
    }
    id, ok := parseID(c, "id")
    if !ok {
        return badID(c, "showtime id")
    }
    var req showtimePatchReq
    if ok, err := bindAndValidate(c, &req); !ok {
        return err
    }
    in, err := req.toInput(uid)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }

    ctx := c.Request().Context()
    cur, err := h.Schedule.Get(ctx, id)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    if err := h.requireHall(ctx, uid, cur.HallID); err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    if in.HallID != nil && *in.HallID != cur.HallID {
        if err := h.requireHall(ctx, uid, *in.HallID); err != nil {
            return writeScheduleError(c, h.Log, err)
        }
    }

    st, err := h.Schedule.Update(ctx, id, in)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, st)
}

// Cancel handles DELETE /v1/showtimes/:id.  The row is soft-deleted and
// returned with status CANCELLED.
func (h *ShowtimeHandler) Cancel(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "unauthorized"})
    }
    id, ok := parseID(c, "id")
    if !ok {
        return badID(c, "showtime id")
    }
    ctx := c.Request().Context()
    cur, err := h.Schedule.Get(ctx, id)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    if err := h.requireHall(ctx, uid, cur.HallID); err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    st, err := h.Schedule.Cancel(ctx, id, &uid)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, st)
}

// Get handles GET /v1/showtimes/:id.
func (h *ShowtimeHandler) Get(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return badID(c, "showtime id")
    }
    st, err := h.Schedule.Get(c.Request().Context(), id)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, st)
}

// CreateBatch handles POST /v1/showtimes/batch.  Items are scheduled in
// order; per-item failures are reported in the body with status 200.
// The request is refused as a whole when it names a hall the caller does
// not own.
func (h *ShowtimeHandler) CreateBatch(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "unauthorized"})
    }
    var req batchReq
    if ok, err := bindAndValidate(c, &req); !ok {
        return err
    }

    ctx := c.Request().Context()
    items := make([]schedule.CreateInput, len(req.Items))
    checked := make(map[uint64]bool)
    for i, r := range req.Items {
        // A bad timestamp fails that item alone.
        in, err := r.toInput(uid)
        in.InputErr = err
        items[i] = in
        if r.HallID == 0 || checked[r.HallID] {
            continue
        }
        if err := h.requireHall(ctx, uid, r.HallID); err != nil {
            return writeScheduleError(c, h.Log, err)
        }
        checked[r.HallID] = true
    }

    res, err := h.Schedule.CreateMany(ctx, items)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    if res.Transient {
        c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
    }
    return c.JSON(http.StatusOK, res)
}

// Conflicts handles GET /v1/halls/:id/conflicts.  It lists the live
// showtimes of the hall that intersect [starts_at, ends_at), optionally
// ignoring exclude_id.
func (h *ShowtimeHandler) Conflicts(c echo.Context) error {
    hallID, ok := parseID(c, "id")
    if !ok {
        return badID(c, "hall id")
    }
    start, err := parseTimestamp("starts_at", c.QueryParam("starts_at"))
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    end, err := parseTimestamp("ends_at", c.QueryParam("ends_at"))
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    var exclude uint64
    if raw := c.QueryParam("exclude_id"); raw != "" {
        exclude, err = strconv.ParseUint(raw, 10, 64)
        if err != nil {
            return badID(c, "exclude_id")
        }
    }

    rows, err := h.Schedule.FindConflicts(c.Request().Context(), hallID, start, end, exclude)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "hall_id":   hallID,
        "starts_at": start,
        "ends_at":   end,
        "conflicts": rows,
    })
}

// ListByHall handles the public GET /v1/halls/:id/showtimes.
func (h *ShowtimeHandler) ListByHall(c echo.Context) error {
    hallID, ok := parseID(c, "id")
    if !ok {
        return badID(c, "hall id")
    }
    rows, err := h.Schedule.ListByHall(c.Request().Context(), hallID)
    if err != nil {
        return writeScheduleError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"hall_id": hallID, "showtimes": rows})
}
