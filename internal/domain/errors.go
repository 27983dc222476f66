package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the application.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPartialDelivery    = errors.New("message partially delivered")
	ErrDatabaseConnection = errors.New("database connection error")
)

// ErrNoMemberProfile is returned when an operation needs the caller's member
// profile but the principal is not linked to one.
var ErrNoMemberProfile = fmt.Errorf("%w: principal has no member profile", ErrForbidden)
