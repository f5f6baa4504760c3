package model

import "time"

// Movie is the content scheduled into halls.  DurationMin is the
// runtime used to derive the length of every showtime of the movie.
type Movie struct {
    ID          uint64     `json:"id"`                   // movies.id
    Title       string     `json:"title"`                // movies.title
    DurationMin int        `json:"duration_min"`         // movies.duration_min
    DeletedAt   *time.Time `json:"deleted_at,omitempty"` // movies.deleted_at
    CreatedAt   time.Time  `json:"created_at"`           // movies.created_at
    UpdatedAt   time.Time  `json:"updated_at"`           // movies.updated_at
}
