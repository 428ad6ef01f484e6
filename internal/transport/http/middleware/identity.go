package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-vault-api/internal/application/mfa"
	"github.com/go-vault-api/internal/domain"
)

const IdentityKey contextKey = "identity"

// SessionLoader fetches sessions by ID.
type SessionLoader interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
}

// UserLoader fetches users by ID.
type UserLoader interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// LoadIdentity resolves the authenticated session and its user from the JWT
// claims and stores the session (user attached) in the request context.
// Disabled sessions are rejected here so downstream code never sees them.
// Must run after Auth.
func LoadIdentity(sessions SessionLoader, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			sess, err := sessions.Get(r.Context(), claims.SessionID)
			if err != nil || !sess.Enable {
				writeJSONError(w, http.StatusUnauthorized, "session not found or expired")
				return
			}
			u, err := users.Get(r.Context(), sess.UserID)
			if err != nil || !u.Enable {
				writeJSONError(w, http.StatusUnauthorized, "account not found or disabled")
				return
			}
			sess.User = u
			ctx := context.WithValue(r.Context(), IdentityKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext extracts the resolved session (with its user) from the
// request context.
func IdentityFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(IdentityKey).(*domain.Session)
	return s, ok
}

// RequireMFA blocks requests whose session has not passed a recent MFA
// verification when the account requires one. Must run after LoadIdentity.
func RequireMFA(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := IdentityFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !mfa.Authorized(sess.User, sess, time.Now()) {
			writeJSONError(w, http.StatusForbidden, "mfa verification required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
