package rate

import "errors"

var (
	// ErrRateLimited is returned when the failure budget of a window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis errors.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
