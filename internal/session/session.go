// Package session is the entry point host code uses to authorize against
// Fatture in Cloud and to obtain fresh access tokens per context key.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/flow"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/state"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/tokenstore"
)

// ErrNotAuthenticated is returned when no token is stored for a context key
var ErrNotAuthenticated = errors.New("not authenticated")

// Mode is how the facade obtains access tokens
type Mode int

const (
	// ModeOAuth2 runs the authorization code grant
	ModeOAuth2 Mode = iota
	// ModeManual uses a static caller-managed access token
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "oauth2"
}

// Facade binds a flow and a token store to one context key
type Facade struct {
	flow        *flow.Flow
	tokens      *tokenstore.Store
	contextKey  string
	manualToken string
	logger      *slog.Logger

	// shared by every facade derived through ForContext
	group   *singleflight.Group
	locks   *keyLocks
	company *companyContext
}

// New creates a facade. The flow decides whether authorization can run;
// WithManualToken switches the facade to manual mode.
func New(f *flow.Flow, tokens *tokenstore.Store, opts ...Option) *Facade {
	s := &Facade{
		flow:       f,
		tokens:     tokens,
		contextKey: state.DefaultContextKey,
		logger:     slog.Default(),
		group:      &singleflight.Group{},
		locks:      &keyLocks{m: make(map[string]*sync.Mutex)},
		company:    &companyContext{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session")
	s.flow = s.flow.ForContext(s.contextKey)
	return s
}

// ForContext returns a facade with an independent token lifecycle under key.
// The company context is shared with the receiver.
func (s *Facade) ForContext(key string) *Facade {
	if key == "" || key == s.contextKey {
		return s
	}
	clone := *s
	clone.contextKey = key
	clone.flow = s.flow.ForContext(key)
	return &clone
}

// ContextKey returns the key tokens are stored under
func (s *Facade) ContextKey() string {
	return s.contextKey
}

// Mode reports whether tokens come from the OAuth2 flow or a static value
func (s *Facade) Mode() Mode {
	if s.manualToken != "" {
		return ModeManual
	}
	return ModeOAuth2
}

// BeginAuthorization returns the provider URL the user agent is sent to
func (s *Facade) BeginAuthorization(ctx context.Context, sessionID string, scopes []string) (string, error) {
	return s.flow.BuildAuthorizationURL(ctx, sessionID, scopes, "")
}

// HandleCallback completes authorization from the callback query. Provider
// rejections and missing parameters fail without touching stored tokens.
func (s *Facade) HandleCallback(ctx context.Context, sessionID string, query url.Values) (*tokenstore.Record, error) {
	if code := query.Get("error"); code != "" {
		oe := oautherr.FromProtocolError(code, query.Get("error_description"),
			oautherr.WithContext("context_key", s.contextKey))
		s.logger.Warn("authorization rejected by provider", "error", oe)
		return nil, oe
	}

	var missing []string
	code, st := query.Get("code"), query.Get("state")
	if code == "" {
		missing = append(missing, "code")
	}
	if st == "" {
		missing = append(missing, "state")
	}
	if len(missing) > 0 {
		oe := oautherr.MissingParameter(missing...)
		s.logger.Warn("incomplete callback", "error", oe)
		return nil, oe
	}

	mu := s.locks.get(s.contextKey)
	mu.Lock()
	defer mu.Unlock()
	return s.flow.ExchangeCode(ctx, sessionID, code, st)
}

// EnsureFreshToken refreshes an expired token. Concurrent callers for the
// same context key share one provider request. Manual mode and an
// unconfigured flow do nothing.
func (s *Facade) EnsureFreshToken(ctx context.Context) error {
	if s.Mode() == ModeManual || s.flow.State() != flow.StateReady {
		return nil
	}
	if !s.tokens.IsExpired(ctx, s.contextKey) {
		return nil
	}

	// a failed refresh purges the record, so a caller going away must not
	// abort the shared request
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(s.contextKey, func() (any, error) {
		mu := s.locks.get(s.contextKey)
		mu.Lock()
		defer mu.Unlock()

		// another writer may have refreshed while we waited
		if !s.tokens.IsExpired(detached, s.contextKey) {
			return nil, nil
		}
		return s.flow.Refresh(detached, s.contextKey)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("refresh shared with concurrent caller", "context_key", s.contextKey)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTokenExpired reports whether the stored token needs a refresh. Manual
// tokens never expire.
func (s *Facade) IsTokenExpired(ctx context.Context) bool {
	if s.Mode() == ModeManual {
		return false
	}
	return s.tokens.IsExpired(ctx, s.contextKey)
}

// Token returns the stored record after ensuring it is fresh
func (s *Facade) Token(ctx context.Context) (*tokenstore.Record, error) {
	if s.Mode() == ModeManual {
		return &tokenstore.Record{AccessToken: s.manualToken}, nil
	}
	if err := s.EnsureFreshToken(ctx); err != nil {
		return nil, err
	}
	rec := s.tokens.Retrieve(ctx, s.contextKey)
	if rec == nil {
		return nil, ErrNotAuthenticated
	}
	return rec, nil
}

// AccessToken returns a usable access token
func (s *Facade) AccessToken(ctx context.Context) (string, error) {
	rec, err := s.Token(ctx)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// ClearSession removes the stored tokens for the context key
func (s *Facade) ClearSession(ctx context.Context) error {
	mu := s.locks.get(s.contextKey)
	mu.Lock()
	defer mu.Unlock()

	if err := s.tokens.Clear(ctx, s.contextKey); err != nil {
		return fmt.Errorf("clearing session %s: %w", s.contextKey, err)
	}
	s.logger.Info("session cleared", "context_key", s.contextKey)
	return nil
}

// ExpiresIn returns the seconds left on the stored token, 0 when absent
func (s *Facade) ExpiresIn(ctx context.Context) int {
	rec := s.tokens.Retrieve(ctx, s.contextKey)
	if rec == nil {
		return 0
	}
	return rec.ExpiresIn(s.tokens.Now())
}

// CompanyContext returns the company the host is operating on
func (s *Facade) CompanyContext() string {
	return s.company.get()
}

// SetCompanyContext stores v converted to a string
func (s *Facade) SetCompanyContext(v any) {
	s.company.set(fmt.Sprint(v))
}

// TokenSource adapts the facade for oauth2.Transport
func (s *Facade) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, facade: s}
}

// CheckHealth verifies the state and token backends
func (s *Facade) CheckHealth(ctx context.Context) error {
	return s.flow.CheckHealth(ctx)
}

type tokenSource struct {
	ctx    context.Context
	facade *Facade
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	rec, err := t.facade.Token(t.ctx)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{
		AccessToken: rec.AccessToken,
		TokenType:   "Bearer",
	}
	if !rec.ExpiresAt.IsZero() {
		tok.Expiry = rec.ExpiresAt
	}
	return tok, nil
}

type keyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *keyLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.m[key]
	if !ok {
		mu = &sync.Mutex{}
		l.m[key] = mu
	}
	return mu
}

type companyContext struct {
	mu    sync.RWMutex
	value string
}

func (c *companyContext) get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *companyContext) set(v string) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
}
