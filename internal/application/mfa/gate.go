package mfa

import (
	"time"

	"github.com/go-vault-api/internal/domain"
)

// Authorized reports whether the session may reach MFA-protected resources.
// Users without MFA enabled pass unconditionally. Users with MFA enabled need
// a session that was verified recently enough; the verified flag alone is not
// sufficient once its window has lapsed.
func Authorized(user *domain.User, session *domain.Session, now time.Time) bool {
	if user == nil || session == nil {
		return false
	}
	if !user.MfaEnabled {
		return true
	}
	if !session.MfaVerified {
		return false
	}
	return now.Unix() <= session.MfaVerifiedExpiresAt
}
