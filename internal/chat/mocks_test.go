package chat

import (
	"context"

	"github.com/avelin/chatter/internal/domain"
	"github.com/avelin/chatter/internal/transport"
	"github.com/stretchr/testify/mock"
)

// MockAPI mocks the transport.API interface
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) Login(ctx context.Context, email, password string) (*domain.Credentials, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Credentials), args.Error(1)
}

func (m *MockAPI) Register(ctx context.Context, profile domain.RegisterProfile) (*domain.Credentials, error) {
	args := m.Called(ctx, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Credentials), args.Error(1)
}

func (m *MockAPI) Refresh(ctx context.Context, refreshToken string) (string, *domain.User, error) {
	args := m.Called(ctx, refreshToken)
	var user *domain.User
	if args.Get(1) != nil {
		user = args.Get(1).(*domain.User)
	}
	return args.String(0), user, args.Error(2)
}

func (m *MockAPI) Me(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockAPI) ChatProtected(ctx context.Context, accessToken, conversationID, message string) (*transport.ChatReply, error) {
	args := m.Called(ctx, accessToken, conversationID, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transport.ChatReply), args.Error(1)
}

func (m *MockAPI) ChatAnonymous(ctx context.Context, history []transport.ChatTurn) (*transport.ChatReply, error) {
	args := m.Called(ctx, history)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transport.ChatReply), args.Error(1)
}

// MockCredentialSource mocks the CredentialSource interface
type MockCredentialSource struct {
	mock.Mock
}

func (m *MockCredentialSource) AccessToken() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *MockCredentialSource) Invalidate(ctx context.Context) {
	m.Called(ctx)
}
