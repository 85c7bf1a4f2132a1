package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrForbidden          = errors.New("access forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrWeakPassword       = errors.New("weak password")
	ErrLastActiveAdmin    = errors.New("cannot remove the last active admin")
	ErrInvalidRecoveryKey = errors.New("invalid recovery key")
)

// Known lists the sentinels that travel over the wire as their message, so a
// remote client can map an error body back to the sentinel.
var Known = []error{
	ErrInvalidCredentials,
	ErrEmailNotConfirmed,
	ErrUserExists,
	ErrUserNotFound,
	ErrProfileNotFound,
	ErrSessionNotFound,
	ErrAccountInactive,
	ErrForbidden,
	ErrInvalidInput,
	ErrWeakPassword,
	ErrLastActiveAdmin,
	ErrInvalidRecoveryKey,
}
