package schedule

import (
	"fmt"
	"time"
)

// Rules are the fixed duration limits applied to every showtime.
type Rules struct {
	// BufferMinutes is the changeover time appended after the movie.
	BufferMinutes int
	// MaxDurationMinutes caps the length of a single showtime.
	MaxDurationMinutes int
}

// DefaultRules returns a 15 minute buffer and a 240 minute ceiling.
func DefaultRules() Rules {
	return Rules{BufferMinutes: 15, MaxDurationMinutes: 240}
}

// RequiredMinutes is the shortest window a movie of the given runtime
// may be scheduled into.
func (r Rules) RequiredMinutes(referenceMinutes int) int {
	return referenceMinutes + r.BufferMinutes
}

// ValidateDuration checks a candidate window against the duration
// rules.  It is a pure function of its inputs; now is the validation
// instant supplied by the caller.  The first failing rule wins and is
// returned as a *ValidationError.
func ValidateDuration(start, end time.Time, referenceMinutes int, now time.Time, rules Rules) error {
	if start.IsZero() || end.IsZero() {
		return invalid(KindInvalidTimestamp, "starts_at and ends_at must be valid timestamps")
	}
	if !end.After(start) {
		return invalid(KindInvalidRange, "ends_at must be after starts_at")
	}
	if start.Before(now) {
		return invalid(KindInThePast, "showtime cannot start in the past (starts_at %s, now %s)",
			start.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	actual := int(end.Sub(start) / time.Minute)
	required := rules.RequiredMinutes(referenceMinutes)
	if actual < required {
		return &ValidationError{
			Kind:            KindTooShort,
			Message:         tooShortMessage(actual, referenceMinutes, rules.BufferMinutes),
			ActualMinutes:   actual,
			RequiredMinutes: required,
		}
	}
	if actual > rules.MaxDurationMinutes {
		return &ValidationError{
			Kind:            KindTooLong,
			Message:         tooLongMessage(actual, rules.MaxDurationMinutes),
			ActualMinutes:   actual,
			RequiredMinutes: rules.MaxDurationMinutes,
		}
	}
	return nil
}

func tooShortMessage(actual, reference, buffer int) string {
	return fmt.Sprintf("showtime lasts %d minutes but needs at least %d (movie %d + buffer %d)",
		actual, reference+buffer, reference, buffer)
}

func tooLongMessage(actual, ceiling int) string {
	return fmt.Sprintf("showtime lasts %d minutes, the maximum is %d", actual, ceiling)
}
