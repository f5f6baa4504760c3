package repository

import (
	"context"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// ScheduleStore bundles the repositories the scheduling service needs
// behind one value.
type ScheduleStore struct {
	*ShowtimeRepo
	Movies *MovieRepo
}

// NewScheduleStore joins a showtime and a movie repository.
func NewScheduleStore(showtimes *ShowtimeRepo, movies *MovieRepo) *ScheduleStore {
	return &ScheduleStore{ShowtimeRepo: showtimes, Movies: movies}
}

// GetMovie looks up the movie supplying a showtime's runtime.
func (s *ScheduleStore) GetMovie(ctx context.Context, id uint64) (*model.Movie, error) {
	return s.Movies.GetByID(ctx, id)
}
