package model

import "time"

// Status is the lifecycle state of a showtime.  Only ACTIVE and
// INACTIVE showtimes occupy their hall; CANCELLED ones never take
// part in overlap checks.
type Status string

const (
    StatusActive    Status = "ACTIVE"
    StatusInactive  Status = "INACTIVE"
    StatusCancelled Status = "CANCELLED"
)

// ParseStatus normalizes a raw status string.  The second result is
// false when the value is not one of the known states.
func ParseStatus(raw string) (Status, bool) {
    switch s := Status(raw); s {
    case StatusActive, StatusInactive, StatusCancelled:
        return s, true
    }
    return "", false
}

// OccupiesHall reports whether a showtime in this state blocks its
// time window in the hall.
func (s Status) OccupiesHall() bool {
    return s == StatusActive || s == StatusInactive
}

// Showtime is a scheduled screening of a movie in a hall.  It occupies
// the half-open window [StartsAt, EndsAt).  Rows are never physically
// removed; a cancelled showtime gets DeletedAt set and status CANCELLED.
//
// Fields:
//  ID        – primary key, assigned by the database on insert.
//  HallID    – hall being occupied; overlap is scoped per hall.
//  MovieID   – movie supplying the reference duration.
//  StartsAt  – beginning of the window (UTC).
//  EndsAt    – end of the window (UTC, exclusive).
//  Status    – ACTIVE, INACTIVE or CANCELLED.
//  DeletedAt – soft delete marker (nil while the row is live).
//  CreatedBy, UpdatedBy – user ids from the JWT subject (nil for system writes).
type Showtime struct {
    ID        uint64     `json:"id"`                   // showtimes.id
    HallID    uint64     `json:"hall_id"`              // showtimes.hall_id
    MovieID   uint64     `json:"movie_id"`             // showtimes.movie_id
    StartsAt  time.Time  `json:"starts_at"`            // showtimes.starts_at
    EndsAt    time.Time  `json:"ends_at"`              // showtimes.ends_at
    Status    Status     `json:"status"`               // showtimes.status
    DeletedAt *time.Time `json:"deleted_at,omitempty"` // showtimes.deleted_at
    CreatedAt time.Time  `json:"created_at"`           // showtimes.created_at
    UpdatedAt time.Time  `json:"updated_at"`           // showtimes.updated_at
    CreatedBy *uint64    `json:"created_by,omitempty"` // showtimes.created_by
    UpdatedBy *uint64    `json:"updated_by,omitempty"` // showtimes.updated_by
}

// Live reports whether the showtime takes part in overlap checks.
func (s Showtime) Live() bool {
    return s.DeletedAt == nil && s.Status.OccupiesHall()
}
