// Package flow implements the OAuth2 authorization code grant: building
// authorization URLs, exchanging callback codes and refreshing tokens
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/metrics"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/provider"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/state"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/tokenstore"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/validation"
)

// State of the flow
type State int

const (
	// StateUninitialized means client configuration is incomplete
	StateUninitialized State = iota
	// StateReady means every operation may proceed
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

// Config is the client registration the flow needs to be ready
type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	DefaultScopes []string
}

// MissingFields names the required settings that are empty
func (c Config) MissingFields() []string {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.RedirectURL == "" {
		missing = append(missing, "redirect_url")
	}
	return missing
}

// Flow runs the authorization code grant for one context key
type Flow struct {
	cfg        Config
	client     provider.Client
	states     *state.Manager
	tokens     *tokenstore.Store
	contextKey string
	logger     *slog.Logger
	metrics    metrics.Collector
	now        func() time.Time
}

// New creates a flow. It is ready only if cfg names a client id, secret
// and redirect URL.
func New(cfg Config, client provider.Client, states *state.Manager, tokens *tokenstore.Store, opts ...Option) *Flow {
	f := &Flow{
		cfg:        cfg,
		client:     client,
		states:     states,
		tokens:     tokens,
		contextKey: state.DefaultContextKey,
		logger:     slog.Default(),
		metrics:    &metrics.NoopCollector{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.states = f.states.ForContext(f.contextKey)
	return f
}

// ForContext returns a flow sharing collaborators but bound to key
func (f *Flow) ForContext(key string) *Flow {
	if key == "" || key == f.contextKey {
		return f
	}
	clone := *f
	clone.contextKey = key
	clone.states = f.states.ForContext(key)
	return &clone
}

// State reports whether the flow is configured
func (f *Flow) State() State {
	if len(f.cfg.MissingFields()) > 0 {
		return StateUninitialized
	}
	return StateReady
}

// ContextKey returns the tenant key tokens are stored under
func (f *Flow) ContextKey() string {
	return f.contextKey
}

func (f *Flow) ready() error {
	if missing := f.cfg.MissingFields(); len(missing) > 0 {
		err := oautherr.MissingConfiguration(missing...)
		f.record(err)
		return err
	}
	return nil
}

// BuildAuthorizationURL stores a state token for the session and returns
// the provider URL to redirect to. An empty explicitState generates one.
func (f *Flow) BuildAuthorizationURL(ctx context.Context, sessionID string, scopes []string, explicitState string) (string, error) {
	if err := f.ready(); err != nil {
		return "", err
	}
	scopes = validation.NormalizeScopes(scopes)
	if len(scopes) == 0 {
		scopes = f.cfg.DefaultScopes
	}
	if err := validation.ValidateScopes(scopes); err != nil {
		return "", f.fail("validating scopes", oautherr.New(oautherr.CodeInvalidScope, "",
			oautherr.WithReason(err.Error())))
	}

	st := explicitState
	if st != "" {
		if err := validation.ValidateStateToken(st); err != nil {
			return "", f.fail("validating state", oautherr.New(oautherr.CodeInvalidRequest, "",
				oautherr.WithReason(err.Error())))
		}
	} else {
		var err error
		if st, err = f.states.Generate(); err != nil {
			return "", f.fail("generating state", oautherr.New(oautherr.CodeServerError, "", oautherr.WithCause(err)))
		}
	}

	if err := f.states.Store(ctx, sessionID, st); err != nil {
		return "", f.fail("storing state", oautherr.NetworkFailure(err))
	}

	f.metrics.AuthorizationStarted()
	return f.client.AuthorizationURL(f.cfg.ClientID, f.cfg.RedirectURL, scopes, st), nil
}

// ExchangeCode validates the callback state and trades code for tokens.
// A state mismatch fails before any request to the provider.
func (f *Flow) ExchangeCode(ctx context.Context, sessionID, code, callbackState string) (*tokenstore.Record, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}

	valid := f.states.Validate(ctx, sessionID, callbackState)
	f.metrics.StateValidated(valid)
	if !valid {
		return nil, f.fail("validating state", oautherr.CSRF())
	}

	tok, err := f.client.ExchangeCode(ctx, code)
	if err != nil {
		oe := classify(err)
		f.metrics.TokenExchanged(oe.Code)
		return nil, f.fail("exchanging code", oe)
	}

	rec, err := f.save(ctx, f.contextKey, tok, "")
	if err != nil {
		f.metrics.TokenExchanged(oautherr.CodeNetworkFailure)
		return nil, f.fail("storing tokens", oautherr.NetworkFailure(err))
	}

	f.metrics.TokenExchanged(metrics.ResultSuccess)
	f.logger.Info("authorization code exchanged",
		"context_key", f.contextKey,
		"has_refresh_token", rec.HasRefreshToken())
	return rec, nil
}

// Refresh renews the access token stored under contextKey. It returns
// nil, nil when no refresh token is stored. Any refresh failure purges
// the stored record.
func (f *Flow) Refresh(ctx context.Context, contextKey string) (*tokenstore.Record, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	if contextKey == "" {
		contextKey = f.contextKey
	}

	refreshToken, ok := f.tokens.RefreshToken(ctx, contextKey)
	if !ok {
		return nil, nil
	}

	tok, err := f.client.ExchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		oe := classify(err)
		f.metrics.TokenRefreshed(oe.Code)
		f.purge(ctx, contextKey)
		return nil, f.fail("refreshing token", oe)
	}

	rec, err := f.save(ctx, contextKey, tok, refreshToken)
	if err != nil {
		f.metrics.TokenRefreshed(oautherr.CodeNetworkFailure)
		f.purge(ctx, contextKey)
		return nil, f.fail("storing refreshed tokens", oautherr.NetworkFailure(err))
	}

	f.metrics.TokenRefreshed(metrics.ResultSuccess)
	f.logger.Debug("access token refreshed", "context_key", contextKey)
	return rec, nil
}

// CheckHealth verifies the state and token backends
func (f *Flow) CheckHealth(ctx context.Context) error {
	return errors.Join(f.states.CheckHealth(ctx), f.tokens.CheckHealth(ctx))
}

// save stores tok, keeping previousRefresh when the provider did not
// rotate the refresh token
func (f *Flow) save(ctx context.Context, contextKey string, tok *oauth2.Token, previousRefresh string) (*tokenstore.Record, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, errors.New("provider returned no access token")
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	expiresAt := f.expiry(tok)

	if err := f.tokens.Store(ctx, contextKey, tok.AccessToken, refresh, expiresAt); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}
	return &tokenstore.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

func (f *Flow) expiry(tok *oauth2.Token) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if tok.ExpiresIn > 0 {
		return f.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

func (f *Flow) purge(ctx context.Context, contextKey string) {
	if err := f.tokens.Clear(ctx, contextKey); err != nil {
		f.logger.Error("purging tokens after failed refresh", "context_key", contextKey, "error", err)
	}
}

func (f *Flow) fail(op string, oe *oautherr.Error) *oautherr.Error {
	f.record(oe)
	f.logger.Warn(op+" failed", "context_key", f.contextKey, "error", oe)
	return oe
}

func (f *Flow) record(oe *oautherr.Error) {
	f.metrics.ErrorRecorded(string(oe.Category), oe.Code)
}

// classify turns any collaborator error into a taxonomy error
func classify(err error) *oautherr.Error {
	if oe, ok := oautherr.As(err); ok {
		return oe
	}
	return oautherr.NetworkFailure(err)
}
