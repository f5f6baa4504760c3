package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// Kind is the stable machine-readable category of a rejected operation.
type Kind string

const (
	KindInvalidTimestamp Kind = "INVALID_TIMESTAMP"
	KindInvalidRange     Kind = "INVALID_RANGE"
	KindInThePast        Kind = "IN_THE_PAST"
	KindTooShort         Kind = "TOO_SHORT"
	KindTooLong          Kind = "TOO_LONG"
	KindInvalidStatus    Kind = "INVALID_STATUS"
	KindBatchTooLarge    Kind = "BATCH_TOO_LARGE"
	KindConflict         Kind = "SCHEDULE_CONFLICT"
	KindNotFound         Kind = "NOT_FOUND"
	KindTransient        Kind = "TRANSIENT_STORAGE"
	KindInternal         Kind = "INTERNAL"
)

// ValidationError reports input that is structurally or semantically
// invalid.  Retrying the same input always fails again.
type ValidationError struct {
	Kind    Kind
	Message string
	// ActualMinutes and RequiredMinutes are set for TOO_SHORT and TOO_LONG.
	ActualMinutes   int
	RequiredMinutes int
}

func (e *ValidationError) Error() string { return string(e.Kind) + ": " + e.Message }

// ConflictError reports that the requested window intersects a live
// showtime in the same hall.  It is returned both when the pre-check
// finds the clash and when the storage exclusion guarantee rejects the
// write, so callers see a single conflict shape.
type ConflictError struct {
	HallID   uint64
	StartsAt time.Time
	EndsAt   time.Time
	// Conflicting is the earliest clashing showtime, nil when the storage
	// layer rejected the write and the winner could not be read back.
	Conflicting *model.Showtime
	// All holds every clashing showtime ordered by start.
	All []model.Showtime
}

func (e *ConflictError) Error() string {
	if e.Conflicting == nil {
		return fmt.Sprintf("hall %d already has a showtime overlapping %s - %s",
			e.HallID, e.StartsAt.UTC().Format(time.RFC3339), e.EndsAt.UTC().Format(time.RFC3339))
	}
	c := e.Conflicting
	return fmt.Sprintf("hall %d is already booked by showtime %d from %s to %s",
		c.HallID, c.ID, c.StartsAt.UTC().Format(time.RFC3339), c.EndsAt.UTC().Format(time.RFC3339))
}

// NotFoundError reports a missing or soft-deleted movie, hall or showtime.
type NotFoundError struct {
	Resource string
	ID       uint64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Resource, e.ID) }

// TransientError wraps a storage failure (timeout, lost connection,
// deadlock) that is safe to retry with the same input.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": transient storage error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// KindOf maps any error returned by this package to its Kind.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		te *TransientError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Kind
	case errors.As(err, &ce):
		return KindConflict
	case errors.As(err, &ne):
		return KindNotFound
	case errors.As(err, &te):
		return KindTransient
	}
	return KindInternal
}

func invalid(kind Kind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
