package config

import (
    "errors"
    "time"
)

// SchedulingConfig tunes the showtime conflict engine.  The defaults are
// a 15 minute changeover buffer, a 240 minute ceiling per showtime and
// at most 50 items per batch request.
type SchedulingConfig struct {
    BufferMin      int           // minutes appended after the movie runtime
    MaxDurationMin int           // longest allowed showtime in minutes
    MaxBatch       int           // largest accepted batch
    WriteTimeout   time.Duration // deadline for a single storage write
    RetryAttempts  int           // attempts for transient storage failures
    RetryBackoff   time.Duration // base delay between attempts
}

// LoadSchedulingConfig reads the SCHEDULE_* variables.
func LoadSchedulingConfig() SchedulingConfig {
    return SchedulingConfig{
        BufferMin:      envInt("SCHEDULE_BUFFER_MIN", 15),
        MaxDurationMin: envInt("SCHEDULE_MAX_DURATION_MIN", 240),
        MaxBatch:       envInt("SCHEDULE_MAX_BATCH", 50),
        WriteTimeout:   envDur("SCHEDULE_WRITE_TIMEOUT", 5*time.Second),
        RetryAttempts:  envInt("SCHEDULE_RETRY_ATTEMPTS", 3),
        RetryBackoff:   envDur("SCHEDULE_RETRY_BACKOFF", 100*time.Millisecond),
    }
}

// Validate rejects settings the engine cannot work with.
func (c SchedulingConfig) Validate() error {
    switch {
    case c.BufferMin < 0:
        return errors.New("SCHEDULE_BUFFER_MIN must not be negative")
    case c.MaxDurationMin <= c.BufferMin:
        return errors.New("SCHEDULE_MAX_DURATION_MIN must exceed SCHEDULE_BUFFER_MIN")
    case c.MaxBatch < 1:
        return errors.New("SCHEDULE_MAX_BATCH must be at least 1")
    case c.RetryAttempts < 1:
        return errors.New("SCHEDULE_RETRY_ATTEMPTS must be at least 1")
    }
    return nil
}
