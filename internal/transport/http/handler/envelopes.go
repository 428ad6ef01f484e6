package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-vault-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SafeUser is the user representation exposed over the wire. Credential and
// secret material never leaves the server.
type SafeUser struct {
	UserID        string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	AuthProvider  string `json:"auth_provider"`
	MfaEnabled    bool   `json:"mfa_enabled"`
	SmsMfaEnabled bool   `json:"sms_mfa_enabled"`
	TotpEnabled   bool   `json:"totp_enabled"`
}

// SafeSession is the session representation exposed over the wire.
type SafeSession struct {
	SessionID   string    `json:"id"`
	MfaVerified bool      `json:"mfa_verified"`
	User        *SafeUser `json:"user,omitempty"`
}

// AuthEnvelope wraps login/register responses. MfaRequired tells the client
// the session cannot reach protected resources until a challenge is passed.
type AuthEnvelope struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	MfaRequired  bool         `json:"mfa_required"`
	Session      *SafeSession `json:"session,omitempty"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		UserID:        u.UserID,
		Username:      u.Username,
		Email:         u.Email,
		AuthProvider:  u.AuthProvider,
		MfaEnabled:    u.MfaEnabled,
		SmsMfaEnabled: u.SmsMfaEnabled,
		TotpEnabled:   u.TotpEnabled,
	}
}

func toSafeSession(s *domain.Session) *SafeSession {
	if s == nil {
		return nil
	}
	return &SafeSession{
		SessionID:   s.SessionID,
		MfaVerified: s.MfaVerified,
		User:        toSafeUser(s.User),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// writeDomainError maps domain sentinels to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrNoChallengePending),
		errors.Is(err, domain.ErrChallengeExpired),
		errors.Is(err, domain.ErrCodeMismatch),
		errors.Is(err, domain.ErrNoSecretAvailable),
		errors.Is(err, domain.ErrInvalidOtp),
		errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDeliveryFailure):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
