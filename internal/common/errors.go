// Package common defines shared constants and sentinel errors used across
// the wikicampus server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Auth errors.
	// ErrorAuthenticationRequired: credential missing or empty, ask the
	// caller to log in. ErrorAuthorizationDenied: the actor is known but
	// lacks rights over the target entity.
	ErrorAuthenticationRequired = errors.New("authentication required")
	ErrorAuthorizationDenied    = errors.New("authorization denied")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Validation errors (malformed entity/property identifier).
	ErrorValidation = errors.New("validation error")
)
