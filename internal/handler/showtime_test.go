package handler

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/mock"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/logger"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/middleware"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/model"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/repository"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/schedule"
)

const owner uint64 = 7

type mockService struct{ mock.Mock }

func (m *mockService) Create(_ context.Context, in schedule.CreateInput) (*model.Showtime, error) {
    args := m.Called(in)
    st, _ := args.Get(0).(*model.Showtime)
    return st, args.Error(1)
}

func (m *mockService) Update(_ context.Context, id uint64, in schedule.UpdateInput) (*model.Showtime, error) {
    args := m.Called(id, in)
    st, _ := args.Get(0).(*model.Showtime)
    return st, args.Error(1)
}

func (m *mockService) Cancel(_ context.Context, id uint64, by *uint64) (*model.Showtime, error) {
    args := m.Called(id, by)
    st, _ := args.Get(0).(*model.Showtime)
    return st, args.Error(1)
}

func (m *mockService) Get(_ context.Context, id uint64) (*model.Showtime, error) {
    args := m.Called(id)
    st, _ := args.Get(0).(*model.Showtime)
    return st, args.Error(1)
}

func (m *mockService) ListByHall(_ context.Context, hallID uint64) ([]model.Showtime, error) {
    args := m.Called(hallID)
    rows, _ := args.Get(0).([]model.Showtime)
    return rows, args.Error(1)
}

func (m *mockService) FindConflicts(_ context.Context, hallID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error) {
    args := m.Called(hallID, start, end, excludeID)
    rows, _ := args.Get(0).([]model.Showtime)
    return rows, args.Error(1)
}

func (m *mockService) CreateMany(_ context.Context, items []schedule.CreateInput) (*schedule.BatchResult, error) {
    args := m.Called(items)
    res, _ := args.Get(0).(*schedule.BatchResult)
    return res, args.Error(1)
}

// ownedHalls answers ownership from a fixed set.
type ownedHalls map[uint64]uint64

func (o ownedHalls) GetByIDAndOwner(_ context.Context, id, ownerID uint64) (*model.Hall, error) {
    if o[id] != ownerID {
        return nil, repository.ErrHallNotFound
    }
    return &model.Hall{ID: id, OwnerID: ownerID}, nil
}

func newShowtimeHandler(svc *mockService) *ShowtimeHandler {
    return NewShowtimeHandler(logger.Discard(), svc, ownedHalls{1: owner, 2: owner, 9: 99})
}

func newCtx(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
    e := echo.New()
    e.Validator = NewRequestValidator()
    req := httptest.NewRequest(method, target, strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.Set(middleware.CtxUserID, owner)
    c.Set(middleware.CtxRole, model.RoleOwner)
    return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var body map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    return body
}

var (
    start = time.Date(2030, 1, 1, 20, 0, 0, 0, time.UTC)
    end   = start.Add(105 * time.Minute)
)

func TestCreateShowtime(t *testing.T) {
    svc := &mockService{}
    svc.On("Create", mock.MatchedBy(func(in schedule.CreateInput) bool {
        return in.HallID == 1 && in.MovieID == 10 && in.StartsAt.Equal(start) && in.EndsAt == nil && *in.By == owner
    })).Return(&model.Showtime{ID: 5, HallID: 1, MovieID: 10, StartsAt: start, EndsAt: end, Status: model.StatusActive}, nil)

    c, rec := newCtx(http.MethodPost, "/v1/showtimes", `{"hall_id":1,"movie_id":10,"starts_at":"2030-01-01T21:00:00+01:00"}`)
    require.NoError(t, newShowtimeHandler(svc).Create(c))

    assert.Equal(t, http.StatusCreated, rec.Code)
    body := decode(t, rec)
    assert.EqualValues(t, 5, body["id"])
    assert.Equal(t, "2030-01-01T21:45:00Z", body["ends_at"])
    svc.AssertExpectations(t)
}

func TestCreateShowtime_RejectedBeforeService(t *testing.T) {
    tests := []struct {
        name   string
        body   string
        status int
        kind   string
    }{
        {"bad timestamp", `{"hall_id":1,"movie_id":10,"starts_at":"tomorrow"}`, http.StatusBadRequest, "INVALID_TIMESTAMP"},
        {"bad end timestamp", `{"hall_id":1,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z","ends_at":"x"}`, http.StatusBadRequest, "INVALID_TIMESTAMP"},
        {"missing movie", `{"hall_id":1,"starts_at":"2030-01-01T20:00:00Z"}`, http.StatusBadRequest, "INVALID_BODY"},
        {"malformed json", `{"hall_id":`, http.StatusBadRequest, "INVALID_BODY"},
        {"foreign hall", `{"hall_id":9,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z"}`, http.StatusNotFound, "NOT_FOUND"},
        {"unknown hall", `{"hall_id":3,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z"}`, http.StatusNotFound, "NOT_FOUND"},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            svc := &mockService{}
            c, rec := newCtx(http.MethodPost, "/v1/showtimes", tt.body)
            require.NoError(t, newShowtimeHandler(svc).Create(c))
            assert.Equal(t, tt.status, rec.Code)
            assert.Equal(t, tt.kind, decode(t, rec)["error"])
            svc.AssertNotCalled(t, "Create", mock.Anything)
        })
    }
}

func TestCreateShowtime_ErrorMapping(t *testing.T) {
    winner := model.Showtime{ID: 42, HallID: 1, StartsAt: start, EndsAt: end, Status: model.StatusActive}
    tests := []struct {
        name   string
        err    error
        status int
        kind   string
        check  func(t *testing.T, rec *httptest.ResponseRecorder, body map[string]any)
    }{
        {
            name:   "too short",
            err:    &schedule.ValidationError{Kind: schedule.KindTooShort, Message: "too short", ActualMinutes: 60, RequiredMinutes: 105},
            status: http.StatusBadRequest,
            kind:   "TOO_SHORT",
            check: func(t *testing.T, _ *httptest.ResponseRecorder, body map[string]any) {
                assert.EqualValues(t, 60, body["actual_minutes"])
                assert.EqualValues(t, 105, body["required_minutes"])
            },
        },
        {
            name:   "conflict",
            err:    &schedule.ConflictError{HallID: 1, StartsAt: start, EndsAt: end, Conflicting: &winner, All: []model.Showtime{winner}},
            status: http.StatusConflict,
            kind:   "SCHEDULE_CONFLICT",
            check: func(t *testing.T, _ *httptest.ResponseRecorder, body map[string]any) {
                conflicting := body["conflicting"].(map[string]any)
                assert.EqualValues(t, 42, conflicting["id"])
                assert.Contains(t, body["message"], "showtime 42")
            },
        },
        {
            name:   "movie missing",
            err:    &schedule.NotFoundError{Resource: "movie", ID: 10},
            status: http.StatusNotFound,
            kind:   "NOT_FOUND",
        },
        {
            name:   "transient",
            err:    &schedule.TransientError{Op: "schedule.Create", Err: repository.ErrTransient},
            status: http.StatusServiceUnavailable,
            kind:   "TRANSIENT_STORAGE",
            check: func(t *testing.T, rec *httptest.ResponseRecorder, _ map[string]any) {
                assert.Equal(t, "1", rec.Header().Get("Retry-After"))
            },
        },
        {
            name:   "unexpected",
            err:    assert.AnError,
            status: http.StatusInternalServerError,
            kind:   "INTERNAL",
            check: func(t *testing.T, _ *httptest.ResponseRecorder, body map[string]any) {
                assert.Equal(t, "internal error", body["message"])
            },
        },
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            svc := &mockService{}
            svc.On("Create", mock.Anything).Return(nil, tt.err)
            c, rec := newCtx(http.MethodPost, "/v1/showtimes", `{"hall_id":1,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z"}`)
            require.NoError(t, newShowtimeHandler(svc).Create(c))

            assert.Equal(t, tt.status, rec.Code)
            body := decode(t, rec)
            assert.Equal(t, tt.kind, body["error"])
            if tt.check != nil {
                tt.check(t, rec, body)
            }
        })
    }
}

func TestUpdateShowtime_MoveRequiresBothHalls(t *testing.T) {
    cur := &model.Showtime{ID: 5, HallID: 1, StartsAt: start, EndsAt: end, Status: model.StatusActive}

    t.Run("target hall not owned", func(t *testing.T) {
        svc := &mockService{}
        svc.On("Get", uint64(5)).Return(cur, nil)
        c, rec := newCtx(http.MethodPatch, "/v1/showtimes/5", `{"hall_id":9}`)
        c.SetParamNames("id")
        c.SetParamValues("5")
        require.NoError(t, newShowtimeHandler(svc).Update(c))
        assert.Equal(t, http.StatusNotFound, rec.Code)
        svc.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
    })

    t.Run("both owned", func(t *testing.T) {
        svc := &mockService{}
        svc.On("Get", uint64(5)).Return(cur, nil)
        moved := *cur
        moved.HallID = 2
        svc.On("Update", uint64(5), mock.MatchedBy(func(in schedule.UpdateInput) bool {
            return in.HallID != nil && *in.HallID == 2 && in.StartsAt == nil && *in.By == owner
        })).Return(&moved, nil)
        c, rec := newCtx(http.MethodPatch, "/v1/showtimes/5", `{"hall_id":2}`)
        c.SetParamNames("id")
        c.SetParamValues("5")
        require.NoError(t, newShowtimeHandler(svc).Update(c))
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.EqualValues(t, 2, decode(t, rec)["hall_id"])
        svc.AssertExpectations(t)
    })
}

func TestUpdateShowtime_CancelViaStatus(t *testing.T) {
    cur := &model.Showtime{ID: 5, HallID: 1, StartsAt: start, EndsAt: end, Status: model.StatusActive}
    svc := &mockService{}
    svc.On("Get", uint64(5)).Return(cur, nil)
    cancelled := *cur
    cancelled.Status = model.StatusCancelled
    svc.On("Update", uint64(5), mock.MatchedBy(func(in schedule.UpdateInput) bool {
        return in.Status != nil && *in.Status == "CANCELLED"
    })).Return(&cancelled, nil)

    c, rec := newCtx(http.MethodPatch, "/v1/showtimes/5", `{"status":"CANCELLED"}`)
    c.SetParamNames("id")
    c.SetParamValues("5")
    require.NoError(t, newShowtimeHandler(svc).Update(c))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "CANCELLED", decode(t, rec)["status"])
}

func TestCancelShowtime(t *testing.T) {
    svc := &mockService{}
    svc.On("Get", uint64(5)).Return(&model.Showtime{ID: 5, HallID: 1}, nil)
    now := start
    svc.On("Cancel", uint64(5), mock.MatchedBy(func(by *uint64) bool { return by != nil && *by == owner })).
        Return(&model.Showtime{ID: 5, HallID: 1, Status: model.StatusCancelled, DeletedAt: &now}, nil)

    c, rec := newCtx(http.MethodDelete, "/v1/showtimes/5", "")
    c.SetParamNames("id")
    c.SetParamValues("5")
    require.NoError(t, newShowtimeHandler(svc).Cancel(c))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "CANCELLED", decode(t, rec)["status"])
}

func TestGetShowtime_NotFoundAndBadID(t *testing.T) {
    svc := &mockService{}
    svc.On("Get", uint64(8)).Return(nil, &schedule.NotFoundError{Resource: "showtime", ID: 8})

    c, rec := newCtx(http.MethodGet, "/v1/showtimes/8", "")
    c.SetParamNames("id")
    c.SetParamValues("8")
    require.NoError(t, newShowtimeHandler(svc).Get(c))
    assert.Equal(t, http.StatusNotFound, rec.Code)

    c, rec = newCtx(http.MethodGet, "/v1/showtimes/abc", "")
    c.SetParamNames("id")
    c.SetParamValues("abc")
    require.NoError(t, newShowtimeHandler(svc).Get(c))
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBatch(t *testing.T) {
    svc := &mockService{}
    svc.On("CreateMany", mock.MatchedBy(func(items []schedule.CreateInput) bool {
        return len(items) == 3 &&
            items[0].StartsAt.Equal(start) && items[0].InputErr == nil &&
            schedule.KindOf(items[1].InputErr) == schedule.KindInvalidTimestamp &&
            schedule.KindOf(items[2].InputErr) == schedule.KindInvalidTimestamp &&
            items[2].StartsAt.Equal(start)
    })).Return(&schedule.BatchResult{
        Succeeded: []model.Showtime{{ID: 1, HallID: 1}},
        Failed: []schedule.BatchFailure{
            {Index: 1, Kind: schedule.KindInvalidTimestamp, Message: "bad"},
            {Index: 2, Kind: schedule.KindInvalidTimestamp, Message: "bad"},
        },
    }, nil)

    c, rec := newCtx(http.MethodPost, "/v1/showtimes/batch", `{"items":[
        {"hall_id":1,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z"},
        {"hall_id":2,"movie_id":10,"starts_at":"soon"},
        {"hall_id":1,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z","ends_at":"not-a-time"}]}`)
    require.NoError(t, newShowtimeHandler(svc).CreateBatch(c))

    assert.Equal(t, http.StatusOK, rec.Code)
    body := decode(t, rec)
    assert.Len(t, body["succeeded"], 1)
    failed := body["failed"].([]any)
    require.Len(t, failed, 2)
    assert.Equal(t, "INVALID_TIMESTAMP", failed[0].(map[string]any)["kind"])
    assert.Empty(t, rec.Header().Get("Retry-After"))
    svc.AssertExpectations(t)
}

func TestCreateBatch_Rejections(t *testing.T) {
    t.Run("too large", func(t *testing.T) {
        svc := &mockService{}
        svc.On("CreateMany", mock.Anything).Return(nil, &schedule.ValidationError{Kind: schedule.KindBatchTooLarge, Message: "too many"})
        c, rec := newCtx(http.MethodPost, "/v1/showtimes/batch", `{"items":[{"hall_id":1,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z"}]}`)
        require.NoError(t, newShowtimeHandler(svc).CreateBatch(c))
        assert.Equal(t, http.StatusBadRequest, rec.Code)
        assert.Equal(t, "BATCH_TOO_LARGE", decode(t, rec)["error"])
    })

    t.Run("foreign hall", func(t *testing.T) {
        svc := &mockService{}
        c, rec := newCtx(http.MethodPost, "/v1/showtimes/batch", `{"items":[{"hall_id":9,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z"}]}`)
        require.NoError(t, newShowtimeHandler(svc).CreateBatch(c))
        assert.Equal(t, http.StatusNotFound, rec.Code)
        svc.AssertNotCalled(t, "CreateMany", mock.Anything)
    })

    t.Run("empty", func(t *testing.T) {
        svc := &mockService{}
        c, rec := newCtx(http.MethodPost, "/v1/showtimes/batch", `{"items":[]}`)
        require.NoError(t, newShowtimeHandler(svc).CreateBatch(c))
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })

    t.Run("transient items", func(t *testing.T) {
        svc := &mockService{}
        svc.On("CreateMany", mock.Anything).Return(&schedule.BatchResult{
            Failed:    []schedule.BatchFailure{{Index: 0, Kind: schedule.KindTransient, Retryable: true}},
            Transient: true,
        }, nil)
        c, rec := newCtx(http.MethodPost, "/v1/showtimes/batch", `{"items":[{"hall_id":1,"movie_id":10,"starts_at":"2030-01-01T20:00:00Z"}]}`)
        require.NoError(t, newShowtimeHandler(svc).CreateBatch(c))
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, "1", rec.Header().Get("Retry-After"))
    })
}

func TestConflicts(t *testing.T) {
    svc := &mockService{}
    svc.On("FindConflicts", uint64(1), start, end, uint64(5)).
        Return([]model.Showtime{{ID: 6, HallID: 1, StartsAt: start, EndsAt: end}}, nil)

    c, rec := newCtx(http.MethodGet, "/v1/halls/1/conflicts?starts_at=2030-01-01T20:00:00Z&ends_at=2030-01-01T21:45:00Z&exclude_id=5", "")
    c.SetParamNames("id")
    c.SetParamValues("1")
    require.NoError(t, newShowtimeHandler(svc).Conflicts(c))

    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Len(t, decode(t, rec)["conflicts"], 1)

    c, rec = newCtx(http.MethodGet, "/v1/halls/1/conflicts?starts_at=2030-01-01T20:00:00Z", "")
    c.SetParamNames("id")
    c.SetParamValues("1")
    require.NoError(t, newShowtimeHandler(svc).Conflicts(c))
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Equal(t, "INVALID_TIMESTAMP", decode(t, rec)["error"])
}

func TestListByHall(t *testing.T) {
    svc := &mockService{}
    svc.On("ListByHall", uint64(1)).Return([]model.Showtime{{ID: 1}, {ID: 2}}, nil)

    c, rec := newCtx(http.MethodGet, "/v1/halls/1/showtimes", "")
    c.SetParamNames("id")
    c.SetParamValues("1")
    require.NoError(t, newShowtimeHandler(svc).ListByHall(c))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Len(t, decode(t, rec)["showtimes"], 2)
}
