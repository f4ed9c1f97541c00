package test

import (
	"context"
	"net/url"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/common"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/session"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/tokenstore"
)

// MockSession provides a full implementation of common.Session for testing
type MockSession struct {
	Key     string
	Company string
	Manual  bool
	Expired bool
	Expires int

	BeginAuthorizationFunc func(ctx context.Context, sessionID string, scopes []string) (string, error)
	HandleCallbackFunc     func(ctx context.Context, sessionID string, query url.Values) (*tokenstore.Record, error)
	EnsureFreshTokenFunc   func(ctx context.Context) error
	ClearSessionFunc       func(ctx context.Context) error
}

var _ common.Session = (*MockSession)(nil)

// Func returns a SessionFunc that records the requested key on m
func (m *MockSession) Func() common.SessionFunc {
	return func(key string) common.Session {
		m.Key = key
		return m
	}
}

// BeginAuthorization implements common.Session
func (m *MockSession) BeginAuthorization(ctx context.Context, sessionID string, scopes []string) (string, error) {
	if m.BeginAuthorizationFunc != nil {
		return m.BeginAuthorizationFunc(ctx, sessionID, scopes)
	}
	return "", nil
}

// HandleCallback implements common.Session
func (m *MockSession) HandleCallback(ctx context.Context, sessionID string, query url.Values) (*tokenstore.Record, error) {
	if m.HandleCallbackFunc != nil {
		return m.HandleCallbackFunc(ctx, sessionID, query)
	}
	return nil, nil
}

// EnsureFreshToken implements common.Session
func (m *MockSession) EnsureFreshToken(ctx context.Context) error {
	if m.EnsureFreshTokenFunc != nil {
		return m.EnsureFreshTokenFunc(ctx)
	}
	return nil
}

// ClearSession implements common.Session
func (m *MockSession) ClearSession(ctx context.Context) error {
	if m.ClearSessionFunc != nil {
		return m.ClearSessionFunc(ctx)
	}
	return nil
}

// IsTokenExpired implements common.Session
func (m *MockSession) IsTokenExpired(context.Context) bool { return m.Expired }

// ExpiresIn implements common.Session
func (m *MockSession) ExpiresIn(context.Context) int { return m.Expires }

// Mode implements common.Session
func (m *MockSession) Mode() session.Mode {
	if m.Manual {
		return session.ModeManual
	}
	return session.ModeOAuth2
}

// ContextKey implements common.Session
func (m *MockSession) ContextKey() string { return m.Key }

// CompanyContext implements common.Session
func (m *MockSession) CompanyContext() string { return m.Company }
