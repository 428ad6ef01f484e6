package user

import (
	"context"
	"testing"

	"github.com/go-vault-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct{ mock.Mock }

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
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

func validRequest() domain.CreateUserRequest {
	return domain.CreateUserRequest{
		Username: "alice",
		Password: "hunter2hunter2",
		Email:    "alice@example.com",
	}
}

func TestRegister_Success(t *testing.T) {
	repo := &mockUserStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, domain.ErrNotFound)

	var created *domain.User
	repo.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.User) }).Return(nil)

	u, err := NewService(repo).Register(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, u.UserID)
	assert.Equal(t, domain.ProviderLocal, u.AuthProvider)
	assert.True(t, u.Enable)
	assert.False(t, u.MfaEnabled)
	require.NotNil(t, created)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("hunter2hunter2")))
}

func TestRegister_UsernameTaken(t *testing.T) {
	repo := &mockUserStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(&domain.User{}, nil)

	_, err := NewService(repo).Register(context.Background(), validRequest())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegister_EmailTaken(t *testing.T) {
	repo := &mockUserStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(&domain.User{}, nil)

	_, err := NewService(repo).Register(context.Background(), validRequest())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCheckAvailability_MixedResult(t *testing.T) {
	repo := &mockUserStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(&domain.User{}, nil)
	repo.On("GetByEmail", mock.Anything, "new@example.com").Return(nil, domain.ErrNotFound)

	avail, err := NewService(repo).CheckAvailability(context.Background(), "alice", "new@example.com")
	require.NoError(t, err)

	require.NotNil(t, avail.Username)
	assert.False(t, *avail.Username)
	require.NotNil(t, avail.Email)
	assert.True(t, *avail.Email)
}

func TestCheckAvailability_NothingToCheck(t *testing.T) {
	repo := &mockUserStore{}
	_, err := NewService(repo).CheckAvailability(context.Background(), "", "")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCheckAvailability_StoreFailure(t *testing.T) {
	repo := &mockUserStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(nil, assert.AnError)

	_, err := NewService(repo).CheckAvailability(context.Background(), "alice", "")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetInfo_MasksSmsNumber(t *testing.T) {
	number := "+15551234567"
	repo := &mockUserStore{}
	repo.On("Get", mock.Anything, "user-1").Return(&domain.User{
		UserID:        "user-1",
		Username:      "alice",
		Email:         "alice@example.com",
		AuthProvider:  domain.ProviderLocal,
		MfaEnabled:    true,
		SmsMfaEnabled: true,
		SmsNumber:     &number,
		TotpEnabled:   true,
	}, nil)

	info, err := NewService(repo).GetInfo(context.Background(), "user-1")
	require.NoError(t, err)

	assert.True(t, info.MfaEnabled)
	assert.True(t, info.SmsMfaEnabled)
	assert.True(t, info.TotpEnabled)
	assert.Equal(t, "+*********67", info.SmsNumber)
}

func TestChangePassword_Success(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &mockUserStore{}
	repo.On("Get", mock.Anything, "user-1").Return(&domain.User{
		UserID:       "user-1",
		PasswordHash: string(hash),
	}, nil)

	var updates map[string]interface{}
	repo.On("Update", mock.Anything, "user-1", mock.Anything).
		Run(func(args mock.Arguments) { updates = args.Get(2).(map[string]interface{}) }).Return(nil)

	err = NewService(repo).ChangePassword(context.Background(), "user-1", "old-password", "new-password")
	require.NoError(t, err)

	newHash, ok := updates[fieldPasswordHash].(string)
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("new-password")))
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &mockUserStore{}
	repo.On("Get", mock.Anything, "user-1").Return(&domain.User{
		UserID:       "user-1",
		PasswordHash: string(hash),
	}, nil)

	err = NewService(repo).ChangePassword(context.Background(), "user-1", "wrong", "new-password")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangePassword_PasswordlessAccount(t *testing.T) {
	repo := &mockUserStore{}
	repo.On("Get", mock.Anything, "user-1").Return(&domain.User{
		UserID:       "user-1",
		AuthProvider: domain.ProviderOIDC,
	}, nil)

	err := NewService(repo).ChangePassword(context.Background(), "user-1", "", "new-password")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
