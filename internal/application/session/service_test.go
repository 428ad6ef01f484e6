package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-vault-api/internal/domain"
	"github.com/go-vault-api/internal/infrastructure/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetBySubject(ctx context.Context, sub string) (*domain.User, error) {
	args := m.Called(ctx, sub)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) PutIfAbsent(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Put(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockSessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionStore) GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error) {
	args := m.Called(ctx, token)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionStore) RotateRefreshToken(ctx context.Context, sessionID, newToken string, newExpiry int64) error {
	return m.Called(ctx, sessionID, newToken, newExpiry).Error(0)
}
func (m *mockSessionStore) Update(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	return m.Called(ctx, sessionID, updates).Error(0)
}

type mockJWTSigner struct{ mock.Mock }

func (m *mockJWTSigner) Sign(userID, sessionID string) (string, error) {
	args := m.Called(userID, sessionID)
	return args.String(0), args.Error(1)
}

type mockOIDCVerifier struct{ mock.Mock }

func (m *mockOIDCVerifier) Validate(tokenStr string) (*oidc.IdentityClaims, error) {
	args := m.Called(tokenStr)
	if c, _ := args.Get(0).(*oidc.IdentityClaims); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func newSvc(us *mockUserStore, ss *mockSessionStore, jwtSigner *mockJWTSigner, ov *mockOIDCVerifier) Service {
	return NewService(ServiceDeps{
		UserRepo:        us,
		SessionRepo:     ss,
		JWTProvider:     jwtSigner,
		OIDCValidator:   ov,
		RefreshTokenDur: 24 * time.Hour,
	})
}

func validClaims() *oidc.IdentityClaims {
	return &oidc.IdentityClaims{
		Email: "alice@example.com",
		Name:  "Alice Smith",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "oidc-sub-123",
		},
	}
}

func localUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{
		UserID:       "user-123",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		AuthProvider: domain.ProviderLocal,
		Enable:       true,
	}
}

func oidcUser() *domain.User {
	return &domain.User{
		UserID:       "user-123",
		Username:     "alice",
		Email:        "alice@example.com",
		AuthProvider: domain.ProviderOIDC,
		OIDCSubject:  "oidc-sub-123",
		Enable:       true,
	}
}

// --- Login tests ---

func TestLogin_Success(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	us.On("GetByUsername", mock.Anything, "alice").Return(localUser(t, "correct horse"), nil)
	ss.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	jwtSigner.On("Sign", "user-123", mock.Anything).Return("bearer", nil)

	result, err := newSvc(us, ss, jwtSigner, ov).Login(context.Background(), LoginRequest{Username: "alice", Password: "correct horse"})

	require.NoError(t, err)
	assert.Equal(t, "bearer", result.Bearer)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, "alice", result.Session.User.Username)
	assert.False(t, result.Session.MfaVerified)
}

func TestLogin_ByEmailFallback(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	us.On("GetByUsername", mock.Anything, "alice@example.com").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "alice@example.com").Return(localUser(t, "pw12345678"), nil)
	ss.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	jwtSigner.On("Sign", mock.Anything, mock.Anything).Return("bearer", nil)

	_, err := newSvc(us, ss, jwtSigner, ov).Login(context.Background(), LoginRequest{Username: "alice@example.com", Password: "pw12345678"})
	require.NoError(t, err)
}

func TestLogin_WrongPassword(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	us.On("GetByUsername", mock.Anything, "alice").Return(localUser(t, "correct horse"), nil)

	_, err := newSvc(us, ss, jwtSigner, ov).Login(context.Background(), LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLogin_UnknownUser(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	us.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	_, err := newSvc(us, ss, jwtSigner, ov).Login(context.Background(), LoginRequest{Username: "ghost", Password: "pw"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLogin_DisabledAccount(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	u := localUser(t, "pw")
	u.Enable = false
	us.On("GetByUsername", mock.Anything, "alice").Return(u, nil)

	_, err := newSvc(us, ss, jwtSigner, ov).Login(context.Background(), LoginRequest{Username: "alice", Password: "pw"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLogin_PasswordlessAccountBlocked(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	us.On("GetByUsername", mock.Anything, "alice").Return(oidcUser(), nil)

	_, err := newSvc(us, ss, jwtSigner, ov).Login(context.Background(), LoginRequest{Username: "alice", Password: "anything"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// --- LoginWithOIDC tests ---

func TestLoginWithOIDC_ExistingSubject(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	ov.On("Validate", "tok").Return(validClaims(), nil)
	us.On("GetBySubject", mock.Anything, "oidc-sub-123").Return(oidcUser(), nil)
	us.On("Update", mock.Anything, "user-123", mock.MatchedBy(func(m map[string]interface{}) bool {
		_, ok := m["last_accessed_at"]
		return ok
	})).Return(nil)
	ss.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	jwtSigner.On("Sign", "user-123", mock.Anything).Return("bearer", nil)

	result, err := newSvc(us, ss, jwtSigner, ov).LoginWithOIDC(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "bearer", result.Bearer)
	assert.NotNil(t, result.Session.User.LastAccessedAt)
	us.AssertNotCalled(t, "PutIfAbsent", mock.Anything, mock.Anything)
}

func TestLoginWithOIDC_NewSubjectProvisionsUser(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	ov.On("Validate", "tok").Return(validClaims(), nil)
	us.On("GetBySubject", mock.Anything, "oidc-sub-123").Return(nil, domain.ErrNotFound)
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)

	var created *domain.User
	us.On("PutIfAbsent", mock.Anything, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.User) }).Return(nil)
	us.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ss.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	jwtSigner.On("Sign", mock.Anything, mock.Anything).Return("bearer", nil)

	result, err := newSvc(us, ss, jwtSigner, ov).LoginWithOIDC(context.Background(), "tok")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, domain.ProviderOIDC, created.AuthProvider)
	assert.Equal(t, "oidc-sub-123", created.OIDCSubject)
	assert.True(t, created.Enable)
	assert.Equal(t, created.UserID, result.Session.UserID)
}

func TestLoginWithOIDC_CreationRaceFallsBackToWinner(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	ov.On("Validate", "tok").Return(validClaims(), nil)
	us.On("GetBySubject", mock.Anything, "oidc-sub-123").Return(nil, domain.ErrNotFound).Once()
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	us.On("PutIfAbsent", mock.Anything, mock.Anything).Return(domain.ErrConflict)
	us.On("GetBySubject", mock.Anything, "oidc-sub-123").Return(oidcUser(), nil)
	us.On("Update", mock.Anything, "user-123", mock.Anything).Return(nil)
	ss.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	jwtSigner.On("Sign", "user-123", mock.Anything).Return("bearer", nil)

	result, err := newSvc(us, ss, jwtSigner, ov).LoginWithOIDC(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "user-123", result.Session.UserID)
}

func TestLoginWithOIDC_InvalidToken(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	ov.On("Validate", "bad").Return(nil, oidc.ErrTokenInvalid)

	_, err := newSvc(us, ss, jwtSigner, ov).LoginWithOIDC(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLoginWithOIDC_DisabledAccount(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	u := oidcUser()
	u.Enable = false
	ov.On("Validate", "tok").Return(validClaims(), nil)
	us.On("GetBySubject", mock.Anything, "oidc-sub-123").Return(u, nil)

	_, err := newSvc(us, ss, jwtSigner, ov).LoginWithOIDC(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// --- session lifecycle tests ---

func TestLogout_DisablesSession(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	ss.On("Update", mock.Anything, "sess-1", map[string]interface{}{"enable": false}).Return(nil)

	err := newSvc(us, ss, jwtSigner, ov).Logout(context.Background(), "sess-1")
	require.NoError(t, err)
	ss.AssertExpectations(t)
}

func TestGetCurrent_DisabledSession(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	ss.On("Get", mock.Anything, "sess-1").Return(&domain.Session{SessionID: "sess-1", Enable: false}, nil)

	_, err := newSvc(us, ss, jwtSigner, ov).GetCurrent(context.Background(), "sess-1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRefresh_RotatesToken(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	sess := &domain.Session{
		SessionID:        "sess-1",
		UserID:           "user-123",
		Enable:           true,
		RefreshToken:     "old-token",
		RefreshExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	ss.On("GetByRefreshToken", mock.Anything, "old-token").Return(sess, nil)
	ss.On("RotateRefreshToken", mock.Anything, "sess-1", mock.Anything, mock.Anything).Return(nil)
	us.On("Get", mock.Anything, "user-123").Return(oidcUser(), nil)
	jwtSigner.On("Sign", "user-123", "sess-1").Return("new-bearer", nil)

	bearer, newToken, err := newSvc(us, ss, jwtSigner, ov).Refresh(context.Background(), "old-token")
	require.NoError(t, err)
	assert.Equal(t, "new-bearer", bearer)
	assert.NotEmpty(t, newToken)
	assert.NotEqual(t, "old-token", newToken)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	us, ss, jwtSigner, ov := &mockUserStore{}, &mockSessionStore{}, &mockJWTSigner{}, &mockOIDCVerifier{}

	sess := &domain.Session{
		SessionID:        "sess-1",
		RefreshExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}
	ss.On("GetByRefreshToken", mock.Anything, "old-token").Return(sess, nil)

	_, _, err := newSvc(us, ss, jwtSigner, ov).Refresh(context.Background(), "old-token")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// --- deriveUsername / sanitizeUsername tests ---

func TestSanitizeUsername(t *testing.T) {
	cases := []struct{ input, want string }{
		{"alice.smith", "alice.smith"},
		{"Alice.Smith", "alice.smith"},
		{"alice+tag", "alicetag"},
		{"123user", "123user"},
		{"!@#$%", ""},
		{"alice smith", "alicesmith"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, sanitizeUsername(c.input), "input: %q", c.input)
	}
}

func TestDeriveUsername_Simple(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)

	svc := &service{userRepo: us}
	username, err := svc.deriveUsername(context.Background(), "alice@example.com")

	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestDeriveUsername_CollisionAddsSuffix(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(&domain.User{}, nil)
	us.On("GetByUsername", mock.Anything, "alice1").Return(nil, domain.ErrNotFound)

	svc := &service{userRepo: us}
	username, err := svc.deriveUsername(context.Background(), "alice@example.com")

	require.NoError(t, err)
	assert.Equal(t, "alice1", username)
}

func TestDeriveUsername_EmptyLocalPartFallsBackToUser(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "user").Return(nil, domain.ErrNotFound)

	svc := &service{userRepo: us}
	username, err := svc.deriveUsername(context.Background(), "!@example.com")

	require.NoError(t, err)
	assert.Equal(t, "user", username)
}

func TestDeriveUsername_ExhaustionReturnsConflict(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, mock.Anything).Return(&domain.User{}, nil)

	svc := &service{userRepo: us}
	_, err := svc.deriveUsername(context.Background(), "alice@example.com")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}
