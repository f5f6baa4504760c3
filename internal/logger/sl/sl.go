// Package sl holds small helpers for building slog attributes.
package sl

import "log/slog"

// Err renders an error as an "error" attribute.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
