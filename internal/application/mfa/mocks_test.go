package mfa

import (
	"context"

	"github.com/go-vault-api/internal/domain"
	"github.com/stretchr/testify/mock"
)

type sessionStoreMock struct {
	mock.Mock
}

func (m *sessionStoreMock) Apply(ctx context.Context, sessionID string, set map[string]interface{}, clear []string) error {
	args := m.Called(ctx, sessionID, set, clear)
	return args.Error(0)
}

func (m *sessionStoreMock) ApplyIfChallengeMatches(ctx context.Context, sessionID, code string, set map[string]interface{}, clear []string) error {
	args := m.Called(ctx, sessionID, code, set, clear)
	return args.Error(0)
}

type userStoreMock struct {
	mock.Mock
}

func (m *userStoreMock) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *userStoreMock) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	args := m.Called(ctx, userID, updates)
	return args.Error(0)
}

type mailerMock struct {
	mock.Mock
}

func (m *mailerMock) SendEmail(to, subject, textBody, htmlBody string) error {
	args := m.Called(to, subject, textBody, htmlBody)
	return args.Error(0)
}

type smsSenderMock struct {
	mock.Mock
}

func (m *smsSenderMock) SendSMS(ctx context.Context, to, message string) error {
	args := m.Called(ctx, to, message)
	return args.Error(0)
}

type qrRendererMock struct {
	mock.Mock
}

func (m *qrRendererMock) Render(uri string) ([]byte, error) {
	args := m.Called(uri)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}
