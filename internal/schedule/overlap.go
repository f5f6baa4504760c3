package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// Overlaps reports whether the half-open windows [s1, e1) and [s2, e2)
// intersect.  A window ending exactly when another starts does not
// overlap it.  This is the only overlap predicate in the codebase; the
// SQL filters and the storage constraint express the same comparison.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// HallLister returns the live showtimes of a hall whose window
// intersects [start, end), optionally skipping one showtime by ID (0
// skips nothing).  Implementations may return extra rows; the detector
// filters again.
type HallLister interface {
	ListActiveInWindow(ctx context.Context, hallID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error)
}

// Detector finds live showtimes that clash with a candidate window.
type Detector struct {
	store HallLister
}

// NewDetector constructs a Detector over the given store.
func NewDetector(store HallLister) *Detector {
	return &Detector{store: store}
}

// FindConflicts returns every live showtime in hallID, other than
// excludeID, whose window intersects [start, end).  The result is
// ordered by start time and is empty when there is no clash.
func (d *Detector) FindConflicts(ctx context.Context, hallID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error) {
	rows, err := d.store.ListActiveInWindow(ctx, hallID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Showtime, 0)
	for _, r := range rows {
		if r.ID == excludeID && excludeID != 0 {
			continue
		}
		if !r.Live() {
			continue
		}
		if Overlaps(start, end, r.StartsAt, r.EndsAt) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}
