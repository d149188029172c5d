package userkit_test

import (
	"context"

	userkit "github.com/goliatone/go-userkit"
	"github.com/stretchr/testify/mock"
)

// MockMessageGateway implements userkit.MessageGateway
type MockMessageGateway struct {
	mock.Mock
}

func (m *MockMessageGateway) SendEmailConfirmationMessage(ctx context.Context, user userkit.ManagedUser, code string) error {
	args := m.Called(ctx, user, code)
	return args.Error(0)
}

func (m *MockMessageGateway) SendPasswordRedefinitionMessage(ctx context.Context, user userkit.ManagedUser, code string) error {
	args := m.Called(ctx, user, code)
	return args.Error(0)
}

func (m *MockMessageGateway) SendTwoFactorAuthenticationMessage(ctx context.Context, user userkit.ManagedUser, code string) error {
	args := m.Called(ctx, user, code)
	return args.Error(0)
}

// MockActivitySink implements userkit.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event userkit.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockTransport implements userkit.Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, msg userkit.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockTokenCodec implements userkit.TokenCodec
type MockTokenCodec struct {
	mock.Mock
}

func (m *MockTokenCodec) Build(claims userkit.Claims) (string, error) {
	args := m.Called(claims)
	return args.String(0), args.Error(1)
}

func (m *MockTokenCodec) Validate(token string) userkit.Claims {
	args := m.Called(token)
	if claims, ok := args.Get(0).(userkit.Claims); ok {
		return claims
	}
	return nil
}

// MockLogger implements userkit.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}
