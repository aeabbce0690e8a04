package common

import "errors"

// Sentinel errors shared across packages. The API layer maps these onto
// HTTP status codes; everything else wraps them with fmt.Errorf and %w.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("already exists")
	ErrUnavailable  = errors.New("service unavailable")
)
