package quiz

import "errors"

// Engine error taxonomy. Handlers map these to HTTP statuses; everything
// else surfaces as an internal error.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidState      = errors.New("attempt not in a valid state")
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	ErrValidation        = errors.New("invalid request")
)
