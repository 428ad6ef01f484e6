package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-vault-api/internal/domain"
	"github.com/go-vault-api/internal/infrastructure/oidc"
	"github.com/go-vault-api/internal/pkg/id"
	pkgtoken "github.com/go-vault-api/internal/pkg/token"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Bearer       string
	RefreshToken string
	Session      *domain.Session
}

// UserStore is the user persistence surface the session flows need.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetBySubject(ctx context.Context, sub string) (*domain.User, error)
	PutIfAbsent(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type SessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error)
	RotateRefreshToken(ctx context.Context, sessionID, newToken string, newExpiry int64) error
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error
}

// TokenSigner mints local bearer tokens.
type TokenSigner interface {
	Sign(userID, sessionID string) (string, error)
}

// IdentityVerifier validates external provider ID tokens.
type IdentityVerifier interface {
	Validate(tokenStr string) (*oidc.IdentityClaims, error)
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	LoginWithOIDC(ctx context.Context, rawToken string) (*LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (bearer, newRefreshToken string, err error)
}

type ServiceDeps struct {
	UserRepo        UserStore
	SessionRepo     SessionStore
	JWTProvider     TokenSigner
	OIDCValidator   IdentityVerifier
	RefreshTokenDur time.Duration
}

type service struct {
	userRepo        UserStore
	sessionRepo     SessionStore
	jwtProvider     TokenSigner
	oidcValidator   IdentityVerifier
	refreshTokenDur time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		userRepo:        deps.UserRepo,
		sessionRepo:     deps.SessionRepo,
		jwtProvider:     deps.JWTProvider,
		oidcValidator:   deps.OIDCValidator,
		refreshTokenDur: deps.RefreshTokenDur,
	}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		u, err = s.userRepo.GetByEmail(ctx, req.Username)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrUnauthorized)
	}
	if u.PasswordHash == "" {
		return nil, fmt.Errorf("password login not available for this account: %w", domain.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	return s.openSession(ctx, u)
}

// LoginWithOIDC exchanges a verified provider ID token for a local session.
// Unknown subjects get a user record created on first sign-in; a lost
// creation race falls back to the record the other request wrote.
func (s *service) LoginWithOIDC(ctx context.Context, rawToken string) (*LoginResult, error) {
	if s.oidcValidator == nil {
		return nil, fmt.Errorf("oidc login not configured: %w", domain.ErrBadRequest)
	}
	claims, err := s.oidcValidator.Validate(rawToken)
	if err != nil {
		return nil, fmt.Errorf("oidc token rejected: %w", domain.ErrUnauthorized)
	}

	u, err := s.userRepo.GetBySubject(ctx, claims.Subject)
	switch {
	case err == nil:
		// known subject
	case errors.Is(err, domain.ErrNotFound):
		u, err = s.provisionOIDCUser(ctx, claims)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrUnauthorized)
	}

	now := time.Now().UTC()
	if err := s.userRepo.Update(ctx, u.UserID, map[string]interface{}{"last_accessed_at": now}); err != nil {
		return nil, err
	}
	u.LastAccessedAt = &now

	return s.openSession(ctx, u)
}

func (s *service) provisionOIDCUser(ctx context.Context, claims *oidc.IdentityClaims) (*domain.User, error) {
	username, err := s.deriveUsername(ctx, claims.Email)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     username,
		Email:        claims.Email,
		AuthProvider: domain.ProviderOIDC,
		OIDCSubject:  claims.Subject,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.userRepo.PutIfAbsent(ctx, u)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, err
	}
	// Another request created the user first; use that record.
	return s.userRepo.GetBySubject(ctx, claims.Subject)
}

func (s *service) openSession(ctx context.Context, u *domain.User) (*LoginResult, error) {
	refreshToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		SessionID:        id.New(),
		UserID:           u.UserID,
		Enable:           true,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(s.refreshTokenDur).Unix(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, err
	}
	bearer, err := s.jwtProvider.Sign(u.UserID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	sess.User = u
	return &LoginResult{Bearer: bearer, RefreshToken: refreshToken, Session: sess}, nil
}

// Logout disables the session; its MFA verification state dies with it.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Update(ctx, sessionID, map[string]interface{}{"enable": false})
}

func (s *service) GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Enable {
		return nil, fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	}
	u, err := s.userRepo.Get(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	sess.User = u
	return sess, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	sess, err := s.sessionRepo.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthorized)
	}
	if sess.RefreshExpiresAt < time.Now().Unix() {
		return "", "", fmt.Errorf("refresh token expired: %w", domain.ErrUnauthorized)
	}
	newToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return "", "", err
	}
	newExpiry := time.Now().Add(s.refreshTokenDur).Unix()
	if err := s.sessionRepo.RotateRefreshToken(ctx, sess.SessionID, newToken, newExpiry); err != nil {
		return "", "", err
	}
	u, err := s.userRepo.Get(ctx, sess.UserID)
	if err != nil {
		return "", "", err
	}
	bearer, err := s.jwtProvider.Sign(u.UserID, sess.SessionID)
	if err != nil {
		return "", "", err
	}
	return bearer, newToken, nil
}

// deriveUsername builds a unique username from the email local part,
// numbering collisions up to 99 before giving up.
func (s *service) deriveUsername(ctx context.Context, email string) (string, error) {
	base := sanitizeUsername(strings.SplitN(email, "@", 2)[0])
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 0; i <= 99; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", base, i)
		}
		_, err := s.userRepo.GetByUsername(ctx, candidate)
		if errors.Is(err, domain.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not derive a free username for %q: %w", email, domain.ErrConflict)
}

func sanitizeUsername(in string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(in) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
