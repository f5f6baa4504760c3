package schedule

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// BatchFailure describes one rejected item of a batch.
type BatchFailure struct {
	Index         int         `json:"index"`
	Kind          Kind        `json:"kind"`
	Message       string      `json:"message"`
	Input         CreateInput `json:"input"`
	Retryable     bool        `json:"retryable"`
	ConflictingID *uint64     `json:"conflicting_id,omitempty"`
}

// BatchResult partitions a batch into stored showtimes and failures.
// Successes keep input order; failures carry their input index.
type BatchResult struct {
	Succeeded []model.Showtime `json:"succeeded"`
	Failed    []BatchFailure   `json:"failed"`
	// Transient is set when at least one item failed for a retryable
	// reason, so the whole batch may be resubmitted.
	Transient bool `json:"transient"`
}

// CreateMany schedules each item independently, in input order, with
// the same semantics as Create.  Items are applied sequentially so an
// earlier item in the batch can make a later one conflict.  Per-item
// failures are collected, never returned as the error; the error is
// non-nil only when the batch is too large or the context ends.
func (s *Service) CreateMany(ctx context.Context, items []CreateInput) (*BatchResult, error) {
	const op = "schedule.CreateMany"

	if limit := s.cfg.MaxBatchSize; limit > 0 && len(items) > limit {
		return nil, invalid(KindBatchTooLarge, "batch holds %d items, the maximum is %d", len(items), limit)
	}

	res := &BatchResult{
		Succeeded: make([]model.Showtime, 0, len(items)),
		Failed:    make([]BatchFailure, 0),
	}
	for i, in := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		st, err := s.Create(ctx, in)
		if err == nil {
			res.Succeeded = append(res.Succeeded, *st)
			s.recordBatchItem("")
			continue
		}
		f := BatchFailure{
			Index:   i,
			Kind:    KindOf(err),
			Message: err.Error(),
			Input:   in,
		}
		var ce *ConflictError
		if errors.As(err, &ce) && ce.Conflicting != nil {
			id := ce.Conflicting.ID
			f.ConflictingID = &id
		}
		if f.Kind == KindTransient {
			f.Retryable = true
			res.Transient = true
		}
		res.Failed = append(res.Failed, f)
		s.recordBatchItem(f.Kind)
	}

	s.log.Info("batch processed", slog.String("op", op),
		slog.Int("total", len(items)), slog.Int("succeeded", len(res.Succeeded)), slog.Int("failed", len(res.Failed)))
	return res, nil
}

func (s *Service) recordBatchItem(kind Kind) {
	if s.recorder != nil {
		s.recorder.BatchItem(kind)
	}
}
