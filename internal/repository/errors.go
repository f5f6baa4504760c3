// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// scheduling service and the handlers to distinguish between different
// failure scenarios without inspecting driver errors. Driver errors are
// classified once, in the database package, and translated here.
package repository

import "errors"

// ErrConflict is returned when a write collides with a uniqueness
// rule, such as a second hall with the same name for one owner.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrOverlap is returned when the storage exclusion guarantee rejected
// a showtime write because another live showtime in the same hall
// intersects the requested window.
var ErrOverlap = errors.New("showtime overlaps an existing showtime")

// ErrTransient wraps failures that are safe to retry: lock timeouts,
// deadlocks, serialization failures, dropped connections and query
// deadlines. The original driver error is kept in the chain.
var ErrTransient = errors.New("transient storage failure")

// ErrMovieNotFound indicates that a movie was not located or is soft-deleted.
var ErrMovieNotFound = errors.New("movie not found")

// ErrShowtimeNotFound indicates that a showtime was not located or is soft-deleted.
var ErrShowtimeNotFound = errors.New("showtime not found")
