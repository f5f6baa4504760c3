package handler

import (
    "errors"
    "log/slog"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/model"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/schedule"
)

// retryAfterSeconds is advertised on 503 responses caused by transient
// storage failures.
const retryAfterSeconds = 1

// errorBody is the JSON shape of every rejected scheduling request.
type errorBody struct {
    Error   string `json:"error"`
    Message string `json:"message"`

    ActualMinutes   int `json:"actual_minutes,omitempty"`
    RequiredMinutes int `json:"required_minutes,omitempty"`

    HallID      uint64           `json:"hall_id,omitempty"`
    Conflicting *model.Showtime  `json:"conflicting,omitempty"`
    Conflicts   []model.Showtime `json:"conflicts,omitempty"`
}

// statusFor maps a schedule error kind to its HTTP status.
func statusFor(kind schedule.Kind) int {
    switch kind {
    case schedule.KindInvalidTimestamp, schedule.KindInvalidRange, schedule.KindInThePast,
        schedule.KindTooShort, schedule.KindTooLong, schedule.KindInvalidStatus, schedule.KindBatchTooLarge:
        return http.StatusBadRequest
    case schedule.KindConflict:
        return http.StatusConflict
    case schedule.KindNotFound:
        return http.StatusNotFound
    case schedule.KindTransient:
        return http.StatusServiceUnavailable
    }
    return http.StatusInternalServerError
}

// writeScheduleError renders an error returned by the schedule service.
// Unexpected errors are logged and reported without internal detail.
func writeScheduleError(c echo.Context, log *slog.Logger, err error) error {
    kind := schedule.KindOf(err)
    status := statusFor(kind)
    body := errorBody{Error: string(kind), Message: err.Error()}

    var (
        ve *schedule.ValidationError
        ce *schedule.ConflictError
    )
    switch {
    case errors.As(err, &ve):
        body.Message = ve.Message
        body.ActualMinutes = ve.ActualMinutes
        body.RequiredMinutes = ve.RequiredMinutes
    case errors.As(err, &ce):
        body.HallID = ce.HallID
        body.Conflicting = ce.Conflicting
        body.Conflicts = ce.All
    case kind == schedule.KindTransient:
        c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
        body.Message = "storage temporarily unavailable, retry the request"
    case kind == schedule.KindInternal:
        log.Error("unexpected schedule error", slog.String("path", c.Path()), sl.Err(err))
        body.Message = "internal error"
    }
    return c.JSON(status, body)
}

// parseTimestamp parses an RFC 3339 timestamp and normalizes it to UTC.
func parseTimestamp(field, raw string) (time.Time, error) {
    t, err := time.Parse(time.RFC3339, raw)
    if err != nil {
        return time.Time{}, &schedule.ValidationError{
            Kind:    schedule.KindInvalidTimestamp,
            Message: field + " must be an RFC 3339 timestamp",
        }
    }
    return t.UTC(), nil
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

func badID(c echo.Context, name string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_ID", "message": "invalid " + name})
}
