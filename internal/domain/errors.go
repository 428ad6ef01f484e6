package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// MFA flow errors. These are user-correctable: a mismatched or expired
// challenge can be retried or re-issued without touching the profile.
var (
	ErrNoChallengePending = errors.New("no MFA challenge pending")
	ErrChallengeExpired   = errors.New("MFA challenge expired")
	ErrCodeMismatch       = errors.New("MFA challenge code mismatch")
	ErrNoSecretAvailable  = errors.New("no TOTP secret available")
	ErrInvalidOtp         = errors.New("invalid one-time passcode")
	ErrInvalidToken       = errors.New("invalid enrollment token")
	ErrDeliveryFailure    = errors.New("challenge delivery failed")
)
