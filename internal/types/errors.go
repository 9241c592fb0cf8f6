package types

import "errors"

// Sentinel errors shared across services and handlers. Handlers map these to
// HTTP status codes; repositories and services wrap them with context via
// fmt.Errorf("...: %w", err).
var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrTokenExpired    = errors.New("token has expired")
	ErrForbidden       = errors.New("action forbidden")
	ErrValidation      = errors.New("validation failed")
)
