package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-vault-api/internal/domain"
	"github.com/go-vault-api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldPasswordHash = "password_hash"
	fieldEnable       = "enable"
)

// Info is the account summary exposed to the client, including which second
// factors are active. The SMS number is masked down to its last two digits.
type Info struct {
	UserID        string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	AuthProvider  string `json:"auth_provider"`
	MfaEnabled    bool   `json:"mfa_enabled"`
	SmsMfaEnabled bool   `json:"sms_mfa_enabled"`
	SmsNumber     string `json:"sms_number,omitempty"`
	TotpEnabled   bool   `json:"totp_enabled"`
}

// Availability reports whether a candidate username or email is free to use.
type Availability struct {
	Username *bool `json:"username,omitempty"`
	Email    *bool `json:"email,omitempty"`
}

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetInfo(ctx context.Context, userID string) (*Info, error)
	CheckAvailability(ctx context.Context, username, email string) (*Availability, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	Deactivate(ctx context.Context, userID string) error
}

type userStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type service struct {
	repo userStore
}

func NewService(repo userStore) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		AuthProvider: domain.ProviderLocal,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) GetInfo(ctx context.Context, userID string) (*Info, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := &Info{
		UserID:        u.UserID,
		Username:      u.Username,
		Email:         u.Email,
		AuthProvider:  u.AuthProvider,
		MfaEnabled:    u.MfaEnabled,
		SmsMfaEnabled: u.SmsMfaEnabled,
		TotpEnabled:   u.TotpEnabled,
	}
	if u.SmsNumber != nil {
		info.SmsNumber = maskNumber(*u.SmsNumber)
	}
	return info, nil
}

// CheckAvailability looks up each provided identifier. At least one of
// username or email must be non-empty.
func (s *service) CheckAvailability(ctx context.Context, username, email string) (*Availability, error) {
	if username == "" && email == "" {
		return nil, fmt.Errorf("username or email required: %w", domain.ErrBadRequest)
	}
	out := &Availability{}
	if username != "" {
		free, err := s.isFree(s.repo.GetByUsername(ctx, username))
		if err != nil {
			return nil, err
		}
		out.Username = &free
	}
	if email != "" {
		free, err := s.isFree(s.repo.GetByEmail(ctx, email))
		if err != nil {
			return nil, err
		}
		out.Email = &free
	}
	return out, nil
}

func (s *service) isFree(_ *domain.User, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	return false, err
}

func (s *service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.PasswordHash == "" {
		return fmt.Errorf("account has no password: %w", domain.ErrBadRequest)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, userID, map[string]interface{}{fieldPasswordHash: string(hash)})
}

func (s *service) Deactivate(ctx context.Context, userID string) error {
	return s.repo.Update(ctx, userID, map[string]interface{}{fieldEnable: false})
}

// maskNumber keeps the leading plus and the last two digits.
func maskNumber(n string) string {
	if len(n) < 4 {
		return n
	}
	masked := []byte(n)
	for i := 1; i < len(masked)-2; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
