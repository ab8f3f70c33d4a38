package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for the auth conditions callers branch on. Both halt
// background activity pending external re-authentication; neither is
// retried.
var (
	// ErrAuthRequired means no bearer token was available. The request is
	// failed before any network attempt.
	ErrAuthRequired = errors.New("auth required: no token available")

	// ErrAuthExpired means the backend rejected the token (HTTP 401).
	ErrAuthExpired = errors.New("auth expired: token rejected by backend")
)

// RemoteError is a non-2xx response that survived the retry policy.
// Rate limiting (429) never surfaces as a RemoteError; it is absorbed by
// backoff inside the client.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: status %d: %s", e.Status, e.Body)
}

// ValidationError is bad input detected before any network call. It is
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NeedsAuth reports whether err is one of the conditions that require
// external re-authentication before any further remote work.
func NeedsAuth(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrAuthExpired)
}
