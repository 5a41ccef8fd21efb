package rate

import "errors"

var (
	// ErrRateLimited is returned once an email or IP has used its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable wraps counter storage failures.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)
