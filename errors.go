package sessionguard

import "errors"

var (
	// ErrServiceNotReady is returned when the Service is used before Build wired its dependencies.
	ErrServiceNotReady = errors.New("session service not initialized")
	// ErrTokenMalformed is returned when a presented token fails format validation.
	// Malformed tokens are rejected before any store round-trip.
	ErrTokenMalformed = errors.New("malformed session token")
	// ErrSessionNotFound is returned when no session record exists for a token.
	// "Never existed" and "expired out of the store" are deliberately indistinguishable.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session exceeded its idle timeout.
	// The record is destroyed as a side effect.
	ErrSessionExpired = errors.New("session expired")
	// ErrHijackSuspected is returned when the presented user agent does not match
	// the one bound to the session. The session is destroyed, never soft-warned.
	ErrHijackSuspected = errors.New("session hijack suspected")
	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	// Distinct from ErrSessionNotFound so callers can fail closed instead of
	// treating an outage as a mass logout.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrRotationIncomplete is returned when a privilege change was applied but
	// the forced rotation could not complete. The caller must surface the
	// anomaly; the old token stays valid until its TTL.
	ErrRotationIncomplete = errors.New("session rotation incomplete")
	// ErrUserRequired is returned when Create is called without a valid owner.
	ErrUserRequired = errors.New("session owner user id required")
)
