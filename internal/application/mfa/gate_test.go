package mfa

import (
	"testing"
	"time"

	"github.com/go-vault-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestAuthorized(t *testing.T) {
	now := time.Unix(1700000000, 0)

	cases := []struct {
		name       string
		mfaEnabled bool
		verified   bool
		expiresAt  int64
		want       bool
	}{
		{"mfa disabled", false, false, 0, true},
		{"mfa disabled with stale verification", false, true, now.Add(-time.Hour).Unix(), true},
		{"mfa enabled, never verified", true, false, 0, false},
		{"mfa enabled, verified within window", true, true, now.Add(time.Hour).Unix(), true},
		{"mfa enabled, verification expired", true, true, now.Add(-time.Second).Unix(), false},
		{"mfa enabled, expires exactly now", true, true, now.Unix(), true},
		{"mfa enabled, verified flag without expiry", true, true, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := &domain.User{UserID: "user-1", MfaEnabled: tc.mfaEnabled}
			session := &domain.Session{
				SessionID:            "sess-1",
				UserID:               "user-1",
				MfaVerified:          tc.verified,
				MfaVerifiedExpiresAt: tc.expiresAt,
			}
			assert.Equal(t, tc.want, Authorized(user, session, now))
		})
	}
}

func TestAuthorized_NilInputs(t *testing.T) {
	now := time.Now()
	assert.False(t, Authorized(nil, &domain.Session{}, now))
	assert.False(t, Authorized(&domain.User{}, nil, now))
}
