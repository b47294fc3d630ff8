package domain

import "errors"

var (
	// ErrConfiguration marks failures caused by missing or invalid
	// external-service configuration. They are never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidRequest marks rejected trip preferences.
	ErrInvalidRequest = errors.New("invalid request")
)
