package common

import "errors"

// Sentinel errors shared across services. Handlers map these onto HTTP
// statuses and app codes; services wrap them with context via fmt.Errorf("%w").
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstream          = errors.New("upstream provider error")
	ErrPersistenceFailed = errors.New("persistence failed")
)
