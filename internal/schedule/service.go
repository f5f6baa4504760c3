// Package schedule is the conflict engine for cinema showtimes.  It
// validates candidate windows against the movie runtime, detects clashes
// with live showtimes in the same hall and performs writes whose
// no-overlap guarantee is finally enforced by the storage layer.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/repository"
)

// Store is the persistence contract the service relies on.  Writes must
// be rejected with repository.ErrOverlap when another live showtime in
// the same hall intersects the new window, even under concurrency.
// Retryable failures are reported wrapped in repository.ErrTransient.
type Store interface {
	HallLister
	GetMovie(ctx context.Context, id uint64) (*model.Movie, error)
	GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error)
	ListByHall(ctx context.Context, hallID uint64) ([]model.Showtime, error)
	Insert(ctx context.Context, s *model.Showtime) error
	Update(ctx context.Context, s *model.Showtime) error
	SoftDelete(ctx context.Context, id uint64, by *uint64) (*model.Showtime, error)
}

// Notifier is told about every committed change.  Delivery failures are
// logged and never undo the write.
type Notifier interface {
	NotifyShowtime(ctx context.Context, action string, s model.Showtime) error
}

// Recorder receives outcome counters.  The metrics package implements it.
type Recorder interface {
	Write(op string, kind Kind)
	Conflict(source string)
	BatchItem(kind Kind)
}

const (
	ActionCreated   = "showtime.created"
	ActionUpdated   = "showtime.updated"
	ActionCancelled = "showtime.cancelled"

	SourcePrecheck = "precheck"
	SourceStorage  = "storage"
)

// Config tunes the service.
type Config struct {
	Rules         Rules
	MaxBatchSize  int
	WriteTimeout  time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		Rules:         DefaultRules(),
		MaxBatchSize:  50,
		WriteTimeout:  5 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  100 * time.Millisecond,
	}
}

// Service creates, updates and cancels showtimes.
type Service struct {
	log      *slog.Logger
	store    Store
	detector *Detector
	cfg      Config
	now      func() time.Time
	notifier Notifier
	recorder Recorder
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now as the validation instant.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithNotifier registers a change notifier.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithRecorder registers an outcome recorder.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

// New constructs a Service.
func New(log *slog.Logger, store Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		log:      log,
		store:    store,
		detector: NewDetector(store),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateInput describes a new showtime.  EndsAt is optional; when given
// it is validated, but the stored end is always derived from the movie
// runtime plus the buffer.
type CreateInput struct {
	HallID   uint64     `json:"hall_id"`
	MovieID  uint64     `json:"movie_id"`
	StartsAt time.Time  `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Status   string     `json:"status,omitempty"`
	By       *uint64    `json:"-"`
	// InputErr carries a decoding failure of the caller's item; such an
	// input is rejected with it before any other rule runs.
	InputErr error `json:"-"`
}

// UpdateInput is a partial update.  Nil fields keep their current value.
type UpdateInput struct {
	HallID   *uint64
	MovieID  *uint64
	StartsAt *time.Time
	EndsAt   *time.Time
	Status   *string
	By       *uint64
}

// Create validates and stores a new showtime.  Transient storage
// failures are retried by re-running the whole pipeline, so a retry
// after a commit whose acknowledgement was lost reports a conflict with
// the row that did land.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Showtime, error) {
	const op = "schedule.Create"

	var out *model.Showtime
	err := s.retry(ctx, op, func() error {
		var err error
		out, err = s.create(ctx, in)
		return err
	})
	s.recordWrite("create", err)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, ActionCreated, *out)
	return out, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*model.Showtime, error) {
	const op = "schedule.create"

	if in.InputErr != nil {
		return nil, in.InputErr
	}
	status := model.StatusActive
	if in.Status != "" {
		st, ok := model.ParseStatus(in.Status)
		if !ok || st == model.StatusCancelled {
			return nil, invalid(KindInvalidStatus, "status must be ACTIVE or INACTIVE on create, got %q", in.Status)
		}
		status = st
	}

	movie, err := s.store.GetMovie(ctx, in.MovieID)
	if err != nil {
		return nil, s.translate(ctx, op, err, in.MovieID, nil)
	}

	now := s.now()
	if in.EndsAt != nil {
		if err := ValidateDuration(in.StartsAt, *in.EndsAt, movie.DurationMin, now, s.cfg.Rules); err != nil {
			return nil, err
		}
	}
	if in.StartsAt.IsZero() {
		return nil, invalid(KindInvalidTimestamp, "starts_at must be a valid timestamp")
	}
	end := s.derivedEnd(in.StartsAt, movie.DurationMin)
	if err := ValidateDuration(in.StartsAt, end, movie.DurationMin, now, s.cfg.Rules); err != nil {
		return nil, err
	}

	conflicts, err := s.detector.FindConflicts(ctx, in.HallID, in.StartsAt, end, 0)
	if err != nil {
		return nil, s.translate(ctx, op, err, in.HallID, nil)
	}
	if len(conflicts) > 0 {
		s.recordConflict(SourcePrecheck)
		return nil, newConflict(in.HallID, in.StartsAt, end, conflicts)
	}

	st := &model.Showtime{
		HallID:    in.HallID,
		MovieID:   in.MovieID,
		StartsAt:  in.StartsAt.UTC(),
		EndsAt:    end.UTC(),
		Status:    status,
		CreatedBy: in.By,
		UpdatedBy: in.By,
	}
	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.store.Insert(wctx, st); err != nil {
		return nil, s.translate(ctx, op, err, in.HallID, &window{hallID: in.HallID, start: st.StartsAt, end: st.EndsAt})
	}
	s.log.Info("showtime created", slog.String("op", op),
		slog.Uint64("id", st.ID), slog.Uint64("hall_id", st.HallID), slog.Time("starts_at", st.StartsAt))
	return st, nil
}

// Update applies a partial update to an existing showtime.  Whenever the
// start, the end or the movie changes the end is re-derived from the
// movie runtime.  The past-start rule only applies when the start moves.
// A transition to CANCELLED frees the window and skips the overlap check;
// fields changed in the same patch are still validated and stored.  A
// cancelled row only accepts a status change.
func (s *Service) Update(ctx context.Context, id uint64, in UpdateInput) (*model.Showtime, error) {
	const op = "schedule.Update"

	var (
		out    *model.Showtime
		action string
	)
	err := s.retry(ctx, op, func() error {
		var err error
		out, action, err = s.update(ctx, id, in)
		return err
	})
	s.recordWrite("update", err)
	if err != nil {
		return nil, err
	}
	if action != "" {
		s.notify(ctx, action, *out)
	}
	return out, nil
}

func (s *Service) update(ctx context.Context, id uint64, in UpdateInput) (*model.Showtime, string, error) {
	const op = "schedule.update"

	cur, err := s.store.GetShowtime(ctx, id)
	if err != nil {
		return nil, "", s.translate(ctx, op, err, id, nil)
	}

	next := *cur
	next.UpdatedBy = in.By
	if in.Status != nil {
		st, ok := model.ParseStatus(*in.Status)
		if !ok {
			return nil, "", invalid(KindInvalidStatus, "unknown status %q", *in.Status)
		}
		next.Status = st
	}

	edits := in.HallID != nil || in.MovieID != nil || in.StartsAt != nil || in.EndsAt != nil
	if next.Status == model.StatusCancelled && cur.Status == model.StatusCancelled {
		if edits {
			return nil, "", invalid(KindInvalidStatus, "showtime %d is cancelled; reactivate it before changing it", id)
		}
		return cur, "", nil
	}
	if next.Status == model.StatusCancelled && !edits {
		wctx, cancel := s.writeContext(ctx)
		defer cancel()
		if err := s.store.Update(wctx, &next); err != nil {
			return nil, "", s.translate(ctx, op, err, id, nil)
		}
		return &next, ActionCancelled, nil
	}

	if in.HallID != nil {
		next.HallID = *in.HallID
	}
	if in.MovieID != nil {
		next.MovieID = *in.MovieID
	}
	movie, err := s.store.GetMovie(ctx, next.MovieID)
	if err != nil {
		return nil, "", s.translate(ctx, op, err, next.MovieID, nil)
	}

	startChanged := in.StartsAt != nil && !in.StartsAt.Equal(cur.StartsAt)
	if in.StartsAt != nil {
		next.StartsAt = in.StartsAt.UTC()
	}

	now := s.now()
	if !startChanged && next.StartsAt.Before(now) {
		// An untouched start that has already passed is not re-judged.
		now = next.StartsAt
	}

	if in.EndsAt != nil {
		if err := ValidateDuration(next.StartsAt, *in.EndsAt, movie.DurationMin, now, s.cfg.Rules); err != nil {
			return nil, "", err
		}
	}
	if in.StartsAt != nil || in.EndsAt != nil || in.MovieID != nil {
		if next.StartsAt.IsZero() {
			return nil, "", invalid(KindInvalidTimestamp, "starts_at must be a valid timestamp")
		}
		next.EndsAt = s.derivedEnd(next.StartsAt, movie.DurationMin).UTC()
	}
	if err := ValidateDuration(next.StartsAt, next.EndsAt, movie.DurationMin, now, s.cfg.Rules); err != nil {
		return nil, "", err
	}

	// A cancelled row never occupies the hall.
	if next.Status != model.StatusCancelled {
		conflicts, err := s.detector.FindConflicts(ctx, next.HallID, next.StartsAt, next.EndsAt, id)
		if err != nil {
			return nil, "", s.translate(ctx, op, err, next.HallID, nil)
		}
		if len(conflicts) > 0 {
			s.recordConflict(SourcePrecheck)
			return nil, "", newConflict(next.HallID, next.StartsAt, next.EndsAt, conflicts)
		}
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.store.Update(wctx, &next); err != nil {
		return nil, "", s.translate(ctx, op, err, id,
			&window{hallID: next.HallID, start: next.StartsAt, end: next.EndsAt, excludeID: id})
	}
	s.log.Info("showtime updated", slog.String("op", op),
		slog.Uint64("id", id), slog.Uint64("hall_id", next.HallID), slog.Time("starts_at", next.StartsAt))
	if next.Status == model.StatusCancelled {
		return &next, ActionCancelled, nil
	}
	return &next, ActionUpdated, nil
}

// Cancel soft-deletes a showtime and marks it CANCELLED so its window
// becomes available again.
func (s *Service) Cancel(ctx context.Context, id uint64, by *uint64) (*model.Showtime, error) {
	const op = "schedule.Cancel"

	var out *model.Showtime
	err := s.retry(ctx, op, func() error {
		wctx, cancel := s.writeContext(ctx)
		defer cancel()
		var err error
		out, err = s.store.SoftDelete(wctx, id, by)
		if err != nil {
			return s.translate(ctx, op, err, id, nil)
		}
		return nil
	})
	s.recordWrite("cancel", err)
	if err != nil {
		return nil, err
	}
	s.log.Info("showtime cancelled", slog.String("op", op), slog.Uint64("id", id))
	s.notify(ctx, ActionCancelled, *out)
	return out, nil
}

// Get returns a live showtime by ID.
func (s *Service) Get(ctx context.Context, id uint64) (*model.Showtime, error) {
	st, err := s.store.GetShowtime(ctx, id)
	if err != nil {
		return nil, s.translate(ctx, "schedule.Get", err, id, nil)
	}
	return st, nil
}

// ListByHall returns the live showtimes of a hall ordered by start.
func (s *Service) ListByHall(ctx context.Context, hallID uint64) ([]model.Showtime, error) {
	rows, err := s.store.ListByHall(ctx, hallID)
	if err != nil {
		return nil, s.translate(ctx, "schedule.ListByHall", err, hallID, nil)
	}
	return rows, nil
}

// FindConflicts is the read-only conflict query.  The window is checked
// for shape only; past windows may still be queried.
func (s *Service) FindConflicts(ctx context.Context, hallID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error) {
	if start.IsZero() || end.IsZero() {
		return nil, invalid(KindInvalidTimestamp, "starts_at and ends_at must be valid timestamps")
	}
	if !end.After(start) {
		return nil, invalid(KindInvalidRange, "ends_at must be after starts_at")
	}
	rows, err := s.detector.FindConflicts(ctx, hallID, start, end, excludeID)
	if err != nil {
		return nil, s.translate(ctx, "schedule.FindConflicts", err, hallID, nil)
	}
	return rows, nil
}

func (s *Service) derivedEnd(start time.Time, durationMin int) time.Time {
	return start.Add(time.Duration(s.cfg.Rules.RequiredMinutes(durationMin)) * time.Minute)
}

func (s *Service) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.WriteTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.WriteTimeout)
}

// window identifies the slot a rejected write was trying to claim.
type window struct {
	hallID    uint64
	start     time.Time
	end       time.Time
	excludeID uint64
}

// translate turns a store error into the package error taxonomy.  For
// an overlap rejection it reads back the winning showtime so callers get
// the same conflict shape as the pre-check produces.
func (s *Service) translate(ctx context.Context, op string, err error, id uint64, w *window) error {
	switch {
	case errors.Is(err, repository.ErrOverlap) && w != nil:
		s.recordConflict(SourceStorage)
		conflicts, ferr := s.detector.FindConflicts(ctx, w.hallID, w.start, w.end, w.excludeID)
		if ferr != nil {
			s.log.Warn("cannot read back conflicting showtime", slog.String("op", op), sl.Err(ferr))
		}
		return newConflict(w.hallID, w.start, w.end, conflicts)
	case errors.Is(err, repository.ErrMovieNotFound):
		return &NotFoundError{Resource: "movie", ID: id}
	case errors.Is(err, repository.ErrHallNotFound):
		if w != nil {
			id = w.hallID
		}
		return &NotFoundError{Resource: "hall", ID: id}
	case errors.Is(err, repository.ErrShowtimeNotFound):
		return &NotFoundError{Resource: "showtime", ID: id}
	case errors.Is(err, repository.ErrTransient),
		errors.Is(err, context.DeadlineExceeded):
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func newConflict(hallID uint64, start, end time.Time, conflicts []model.Showtime) *ConflictError {
	ce := &ConflictError{HallID: hallID, StartsAt: start, EndsAt: end, All: conflicts}
	if len(conflicts) > 0 {
		first := conflicts[0]
		ce.Conflicting = &first
	}
	return ce
}

// retry re-runs fn while it fails with a *TransientError, up to the
// configured number of attempts, backing off linearly between tries.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	attempts := s.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		var te *TransientError
		if err == nil || !errors.As(err, &te) || attempt == attempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		s.log.Warn("transient storage error, retrying",
			slog.String("op", op), slog.Int("attempt", attempt), sl.Err(err))
		t := time.NewTimer(s.cfg.RetryBackoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

func (s *Service) notify(ctx context.Context, action string, st model.Showtime) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyShowtime(ctx, action, st); err != nil {
		s.log.Warn("showtime event not published",
			slog.String("action", action), slog.Uint64("id", st.ID), sl.Err(err))
	}
}

func (s *Service) recordWrite(op string, err error) {
	if s.recorder != nil {
		s.recorder.Write(op, KindOf(err))
	}
}

func (s *Service) recordConflict(source string) {
	if s.recorder != nil {
		s.recorder.Conflict(source)
	}
}
