package model

import "errors"

var (
	// ErrNotFound is returned when an entity is required to exist and does not.
	ErrNotFound = errors.New("entity was not found")

	// ErrWrongState is returned when an operation requires the user to be in a
	// different lifecycle partition than it currently is.
	ErrWrongState = errors.New("user is not in the required state")

	// ErrInvariantViolation is returned when an operation would break a domain
	// invariant, e.g. claiming an email twice or removing the sole email.
	ErrInvariantViolation = errors.New("operation violates a domain invariant")

	// ErrExpired is returned when an activation token is past its window.
	ErrExpired = errors.New("activation token expired")

	// ErrInvalidInput is returned on malformed caller input, e.g. an out-of-bounds
	// page size or a token that does not match the pending registration.
	ErrInvalidInput = errors.New("invalid input")
)
