package auth

import (
	"errors"
	"fmt"
)

// Rejection reasons surfaced to callers. These are deliberately distinct so
// operators can tell a revoked key from a mis-scoped one; they are never
// collapsed into an opaque "forbidden".
const (
	ReasonNotFound       = "not_found"
	ReasonRevoked        = "revoked"
	ReasonExpired        = "expired"
	ReasonPathNotAllowed = "path_not_allowed"
)

// ErrMissingKey means no key was presented at all (401, not 403).
var ErrMissingKey = errors.New("api key is required")

// ErrRateLimited means the key exceeded its hourly allowance.
var ErrRateLimited = errors.New("rate limit exceeded")

// AuthError is a rejection of a presented key, carrying the reason.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("api key rejected: %s", e.Reason)
}
