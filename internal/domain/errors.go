package domain

import "errors"

var (
	// ErrNotFound is returned when the requested record or namespace does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether email or password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited signals too many attempts inside the sliding window.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidInput covers malformed caller input (bad email shape, empty fields).
	ErrInvalidInput = errors.New("invalid input")
	// ErrPolicyViolation aggregates weak/reused password findings.
	ErrPolicyViolation = errors.New("password policy violation")
	// ErrSessionExpired and ErrSessionRevoked are terminal session states
	// detected lazily at validation time.
	ErrSessionExpired = errors.New("session expired")
	ErrSessionRevoked = errors.New("session revoked")
	// ErrNotAuthenticated is returned by operations that require a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrStorageCorrupted means ciphertext failed authentication: tampering or
	// a wrong key. It must never be silently collapsed into empty data.
	ErrStorageCorrupted = errors.New("storage corrupted")
	// ErrStorageUnavailable means the backing file could not be read or written.
	// Fatal for the operation in progress, but must not poison other namespaces.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConflict is returned when a unique key already exists.
	ErrConflict = errors.New("conflict")
)
