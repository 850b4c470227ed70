package persistence

import "errors"

var (
	// ErrQuotaExceeded is returned when a write does not fit in the medium.
	ErrQuotaExceeded = errors.New("persistence: quota exceeded")
	// ErrClosed is returned by operations on a closed medium.
	ErrClosed = errors.New("persistence: medium closed")
	// ErrCorruptValue is returned when a stored value cannot be decoded.
	ErrCorruptValue = errors.New("persistence: corrupt value")
)
