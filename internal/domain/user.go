package domain

import "time"

// Auth provider values stored on User.AuthProvider.
const (
	ProviderLocal = "local"
	ProviderOIDC  = "oidc"
)

// User is an account plus its MFA profile. The MFA fields are mutated only by
// enrollment confirmation and MFA-disable operations, never on login.
// TotpSecret may be set while TotpEnabled is still false: during enrollment
// the secret lives in the session and is persisted here on confirmation.
type User struct {
	UserID       string  `json:"id" dynamodbav:"user_id"`
	Username     string  `json:"username" dynamodbav:"username"`
	Email        string  `json:"email" dynamodbav:"email"`
	PasswordHash string  `json:"-" dynamodbav:"password_hash"`
	AuthProvider string  `json:"auth_provider,omitempty" dynamodbav:"auth_provider"` // "local" | "oidc"
	OIDCSubject  string  `json:"-" dynamodbav:"oidc_sub"`

	MfaEnabled    bool    `json:"mfa_enabled" dynamodbav:"mfa_enabled"`
	SmsMfaEnabled bool    `json:"mfa_sms_enabled" dynamodbav:"sms_mfa_enabled"`
	SmsNumber     *string `json:"-" dynamodbav:"sms_number"`
	TotpEnabled   bool    `json:"mfa_totp_enabled" dynamodbav:"totp_enabled"`
	TotpSecret    *string `json:"-" dynamodbav:"totp_secret"`

	Enable         bool       `json:"enable" dynamodbav:"enable"`
	LastAccessedAt *time.Time `json:"last_accessed,omitempty" dynamodbav:"last_accessed_at"`
	CreatedAt      time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time  `json:"updated" dynamodbav:"updated_at"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" validate:"required,email"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}
