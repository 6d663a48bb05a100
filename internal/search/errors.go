package search

import (
	"context"
	"errors"
)

var (
	ErrInvalidConfiguration = errors.New("search client is not configured")
	ErrInvalidKey           = errors.New("search client credential rejected")
	ErrInvalidQuery         = errors.New("invalid search query")
	ErrInvalidCount         = errors.New("result count out of range")
	ErrNetwork              = errors.New("search provider unreachable")
	ErrRateLimited          = errors.New("search provider rate limited")
	ErrNotFound             = errors.New("videos not found")
)

// IsFatal reports errors that no later fallback stage can fix.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrInvalidQuery)
}

// IsTransient reports errors that drive stage advancement and are never
// shown to the user on their own.
func IsTransient(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		retryable(err)
}
