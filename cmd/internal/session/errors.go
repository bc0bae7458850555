package session

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConfig       = errors.New("invalid session config")
	// ErrNotActive covers missing, expired, and revoked sessions alike so the
	// API cannot be used to probe which tokens ever existed.
	ErrNotActive = errors.New("session not active")
)
