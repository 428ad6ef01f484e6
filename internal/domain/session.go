package domain

import "time"

// Session field names used by the MFA engine when patching individual
// attributes on a session record. They must stay in sync with the
// dynamodbav tags on Session below.
const (
	SessionFieldChallengeCode        = "mfa_challenge_code"
	SessionFieldChallengeExpiresAt   = "mfa_challenge_expires_at"
	SessionFieldPendingSmsNumber     = "mfa_pending_sms_number"
	SessionFieldPendingTotpSecret    = "mfa_totp_enrollment_secret"
	SessionFieldMfaVerified          = "mfa_verified"
	SessionFieldMfaVerifiedExpiresAt = "mfa_verified_expires_at"
)

// Session is one client session. Besides the refresh-token lifecycle it
// carries the ephemeral MFA state bag: at most one outstanding challenge
// (code + expiry always set and cleared together), optional pending
// enrollment data, and the "MFA passed recently" flag with its own expiry.
// MfaVerified is never swept; readers must compare MfaVerifiedExpiresAt
// against the clock. All of it dies with the session.
type Session struct {
	SessionID        string `json:"id" dynamodbav:"session_id"`
	UserID           string `json:"user_id" dynamodbav:"user_id"`
	Enable           bool   `json:"enable" dynamodbav:"enable"`
	RefreshToken     string `json:"-" dynamodbav:"refresh_token"`
	RefreshExpiresAt int64  `json:"-" dynamodbav:"refresh_expires_at"`

	ChallengeCode        *string `json:"-" dynamodbav:"mfa_challenge_code"`
	ChallengeExpiresAt   int64   `json:"-" dynamodbav:"mfa_challenge_expires_at"`
	PendingSmsNumber     *string `json:"-" dynamodbav:"mfa_pending_sms_number"`
	PendingTotpSecret    *string `json:"-" dynamodbav:"mfa_totp_enrollment_secret"`
	MfaVerified          bool    `json:"mfa_verified" dynamodbav:"mfa_verified"`
	MfaVerifiedExpiresAt int64   `json:"-" dynamodbav:"mfa_verified_expires_at"`

	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
	User      *User     `json:"user,omitempty" dynamodbav:"-"`
}
