// Package queue defines the showtime events exchanged over the message
// broker, the publisher that emits them after each committed write and
// the background consumer that records them.
package queue

import (
    "time"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// ShowtimeQueue is the durable queue carrying every showtime change.
const ShowtimeQueue = "showtime.events"

// ShowtimeEvent is published when a showtime is created, updated or
// cancelled.  It carries the state after the change so consumers never
// need to query the primary database.
type ShowtimeEvent struct {
    EventID    string    `json:"event_id"`
    Action     string    `json:"action"` // showtime.created | showtime.updated | showtime.cancelled
    ShowtimeID uint64    `json:"showtime_id"`
    HallID     uint64    `json:"hall_id"`
    MovieID    uint64    `json:"movie_id"`
    StartsAt   time.Time `json:"starts_at"`
    EndsAt     time.Time `json:"ends_at"`
    Status     string    `json:"status"`
    ActorID    *uint64   `json:"actor_id,omitempty"`
    OccurredAt time.Time `json:"occurred_at"`
}

// NewShowtimeEvent snapshots s for the given action.
func NewShowtimeEvent(id, action string, s model.Showtime, at time.Time) ShowtimeEvent {
    return ShowtimeEvent{
        EventID:    id,
        Action:     action,
        ShowtimeID: s.ID,
        HallID:     s.HallID,
        MovieID:    s.MovieID,
        StartsAt:   s.StartsAt.UTC(),
        EndsAt:     s.EndsAt.UTC(),
        Status:     string(s.Status),
        ActorID:    s.UpdatedBy,
        OccurredAt: at.UTC(),
    }
}
