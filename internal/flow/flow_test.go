package flow

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/state"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/tokenstore"
)

// mockClient implements provider.Client for testing
type mockClient struct {
	exchangeCalls int
	refreshCalls  int
	token         *oauth2.Token
	err           error
	lastScopes    []string
}

func (m *mockClient) AuthorizationURL(clientID, redirectURL string, scopes []string, st string) string {
	m.lastScopes = scopes
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURL)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("state", st)
	return "https://provider.test/oauth/authorize?" + q.Encode()
}

func (m *mockClient) ExchangeCode(context.Context, string) (*oauth2.Token, error) {
	m.exchangeCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.token, nil
}

func (m *mockClient) ExchangeRefreshToken(context.Context, string) (*oauth2.Token, error) {
	m.refreshCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.token, nil
}

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

var readyConfig = Config{
	ClientID:      "cid",
	ClientSecret:  "secret",
	RedirectURL:   "https://app.test/oauth/callback",
	DefaultScopes: []string{"entity.clients:r"},
}

type fixture struct {
	flow   *Flow
	client *mockClient
	tokens *tokenstore.Store
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	cipher, err := tokenstore.NewAESGCM([]byte("flow-test-secret"))
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}
	clock := func() time.Time { return testNow }
	tokens := tokenstore.New(tokenstore.NewMemoryCache(), cipher, tokenstore.WithClock(clock))
	client := &mockClient{}
	f := New(cfg, client, state.NewManager(state.NewMemoryStore()), tokens, WithClock(clock))
	return fixture{flow: f, client: client, tokens: tokens}
}

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.Query().Get("state")
}

func TestFlow_Uninitialized(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, Config{ClientID: "cid"})

	if fx.flow.State() != StateUninitialized {
		t.Fatalf("State() = %v, want uninitialized", fx.flow.State())
	}

	_, err := fx.flow.BuildAuthorizationURL(ctx, "sess", nil, "")
	if !oautherr.HasCode(err, oautherr.CodeMissingConfiguration) {
		t.Errorf("BuildAuthorizationURL() error = %v, want missing_configuration", err)
	}
	_, err = fx.flow.ExchangeCode(ctx, "sess", "code", "state")
	if oe, _ := oautherr.As(err); oe == nil || oe.Category != oautherr.CategoryConfiguration {
		t.Errorf("ExchangeCode() error = %v, want CONFIGURATION", err)
	}
	_, err = fx.flow.Refresh(ctx, "")
	if !oautherr.HasCode(err, oautherr.CodeMissingConfiguration) {
		t.Errorf("Refresh() error = %v, want missing_configuration", err)
	}

	if fx.client.exchangeCalls+fx.client.refreshCalls != 0 {
		t.Error("uninitialized flow reached the provider")
	}
}

func TestFlow_BuildAuthorizationURL(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, readyConfig)

	t.Run("generated_state", func(t *testing.T) {
		raw, err := fx.flow.BuildAuthorizationURL(ctx, "sess", nil, "")
		if err != nil {
			t.Fatalf("BuildAuthorizationURL() error = %v", err)
		}
		st := stateFromURL(t, raw)
		if len(st) < 40 {
			t.Errorf("state %q shorter than 40 characters", st)
		}
		if strings.Join(fx.client.lastScopes, " ") != "entity.clients:r" {
			t.Errorf("scopes = %v, want default scopes", fx.client.lastScopes)
		}
	})

	t.Run("explicit_state", func(t *testing.T) {
		explicit := "Xk3pQ9vLm2NwR7tYb5CzJ8hF4dGs6AeU1oWiKqTnMyPx"
		raw, err := fx.flow.BuildAuthorizationURL(ctx, "sess", []string{"entity.clients:r settings:a"}, explicit)
		if err != nil {
			t.Fatalf("BuildAuthorizationURL() error = %v", err)
		}
		if stateFromURL(t, raw) != explicit {
			t.Errorf("state not passed through: %s", raw)
		}
		if strings.Join(fx.client.lastScopes, " ") != "entity.clients:r settings:a" {
			t.Errorf("scopes = %v", fx.client.lastScopes)
		}
	})

	t.Run("weak_explicit_state", func(t *testing.T) {
		_, err := fx.flow.BuildAuthorizationURL(ctx, "sess", nil, "short")
		if !oautherr.HasCode(err, oautherr.CodeInvalidRequest) {
			t.Errorf("error = %v, want invalid_request", err)
		}
	})

	t.Run("bad_scope", func(t *testing.T) {
		_, err := fx.flow.BuildAuthorizationURL(ctx, "sess", []string{"everything"}, "")
		if !oautherr.HasCode(err, oautherr.CodeInvalidScope) {
			t.Errorf("error = %v, want invalid_scope", err)
		}
	})
}

func TestFlow_ExchangeCode_Success(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, readyConfig)
	fx.client.token = &oauth2.Token{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600}

	raw, _ := fx.flow.BuildAuthorizationURL(ctx, "sess", nil, "")
	rec, err := fx.flow.ExchangeCode(ctx, "sess", "code", stateFromURL(t, raw))
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if rec.AccessToken != "at" || rec.RefreshToken != "rt" || !rec.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("record = %+v", rec)
	}

	stored := fx.tokens.Retrieve(ctx, state.DefaultContextKey)
	if stored == nil || stored.AccessToken != "at" {
		t.Errorf("stored record = %+v", stored)
	}

	// state is single use
	_, err = fx.flow.ExchangeCode(ctx, "sess", "code", stateFromURL(t, raw))
	if !oautherr.HasCode(err, oautherr.CodeInvalidRequest) {
		t.Errorf("replayed state error = %v, want invalid_request", err)
	}
}

func TestFlow_ExchangeCode_CSRFBeforeNetwork(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		state string
		setup bool
	}{
		{name: "no_state_stored", state: "anything"},
		{name: "wrong_state", state: "wrong", setup: true},
		{name: "empty_state", state: "", setup: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, readyConfig)
			fx.client.token = &oauth2.Token{AccessToken: "at"}
			if tt.setup {
				_, _ = fx.flow.BuildAuthorizationURL(ctx, "sess", nil, "")
			}

			_, err := fx.flow.ExchangeCode(ctx, "sess", "code", tt.state)
			oe, ok := oautherr.As(err)
			if !ok {
				t.Fatalf("error = %v, want *oautherr.Error", err)
			}
			if oe.Code != oautherr.CodeInvalidRequest || oe.Category != oautherr.CategoryAuthorization {
				t.Errorf("error = %s/%s, want invalid_request/AUTHORIZATION", oe.Code, oe.Category)
			}
			if oe.Reason != oautherr.ReasonCSRF {
				t.Errorf("Reason = %q, want %q", oe.Reason, oautherr.ReasonCSRF)
			}
			if fx.client.exchangeCalls != 0 {
				t.Errorf("provider called %d times, want 0", fx.client.exchangeCalls)
			}
			if fx.tokens.Retrieve(ctx, state.DefaultContextKey) != nil {
				t.Error("token store written after CSRF failure")
			}
		})
	}
}

func TestFlow_ExchangeCode_ProviderError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"classified", oautherr.FromProtocolError(oautherr.CodeInvalidCode, "expired"), oautherr.CodeInvalidCode},
		{"unclassified", errors.New("dial tcp: i/o timeout"), oautherr.CodeNetworkFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, readyConfig)
			fx.client.err = tt.err

			raw, _ := fx.flow.BuildAuthorizationURL(ctx, "sess", nil, "")
			_, err := fx.flow.ExchangeCode(ctx, "sess", "code", stateFromURL(t, raw))
			if !oautherr.HasCode(err, tt.wantCode) {
				t.Errorf("ExchangeCode() error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestFlow_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("absent_refresh_token", func(t *testing.T) {
		fx := newFixture(t, readyConfig)
		rec, err := fx.flow.Refresh(ctx, "")
		if rec != nil || err != nil {
			t.Errorf("Refresh() = %v, %v, want nil, nil", rec, err)
		}
		if fx.client.refreshCalls != 0 {
			t.Error("provider called without refresh token")
		}
	})

	t.Run("success_keeps_refresh_token", func(t *testing.T) {
		fx := newFixture(t, readyConfig)
		_ = fx.tokens.Store(ctx, "default", "old-at", "old-rt", testNow.Add(-time.Minute))
		fx.client.token = &oauth2.Token{AccessToken: "new-at", Expiry: testNow.Add(time.Hour)}

		rec, err := fx.flow.Refresh(ctx, "")
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if rec.AccessToken != "new-at" || rec.RefreshToken != "old-rt" {
			t.Errorf("record = %+v", rec)
		}
		if fx.tokens.IsExpired(ctx, "default") {
			t.Error("refreshed token reported expired")
		}
	})

	t.Run("failure_purges", func(t *testing.T) {
		fx := newFixture(t, readyConfig)
		_ = fx.tokens.Store(ctx, "default", "old-at", "old-rt", testNow.Add(-time.Minute))
		fx.client.err = oautherr.FromProtocolError(oautherr.CodeInvalidRefreshToken, "revoked")

		_, err := fx.flow.Refresh(ctx, "")
		oe, ok := oautherr.As(err)
		if !ok || oe.Category != oautherr.CategoryTokenRefresh {
			t.Fatalf("Refresh() error = %v, want TOKEN_REFRESH", err)
		}
		if fx.tokens.Retrieve(ctx, "default") != nil {
			t.Error("record survived failed refresh")
		}
	})

	t.Run("explicit_context_key", func(t *testing.T) {
		fx := newFixture(t, readyConfig)
		_ = fx.tokens.Store(ctx, "acme", "at", "rt", testNow.Add(-time.Minute))
		_ = fx.tokens.Store(ctx, "default", "at-default", "rt-default", testNow.Add(time.Hour))
		fx.client.err = errors.New("connection reset")

		_, _ = fx.flow.Refresh(ctx, "acme")
		if fx.tokens.Retrieve(ctx, "acme") != nil {
			t.Error("acme record survived failed refresh")
		}
		if fx.tokens.Retrieve(ctx, "default") == nil {
			t.Error("failed refresh for acme purged the default record")
		}
	})
}

func TestFlow_ForContext(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, readyConfig)
	fx.client.token = &oauth2.Token{AccessToken: "acme-at", ExpiresIn: 60}

	acme := fx.flow.ForContext("acme")
	if acme.ContextKey() != "acme" || fx.flow.ContextKey() != state.DefaultContextKey {
		t.Fatalf("context keys = %s/%s", fx.flow.ContextKey(), acme.ContextKey())
	}

	raw, _ := acme.BuildAuthorizationURL(ctx, "sess", nil, "")
	st := stateFromURL(t, raw)

	// state bound to acme is not valid for the default context
	if _, err := fx.flow.ExchangeCode(ctx, "sess", "code", st); !oautherr.HasCode(err, oautherr.CodeInvalidRequest) {
		t.Errorf("cross-context exchange error = %v", err)
	}
	if _, err := acme.ExchangeCode(ctx, "sess", "code", st); err != nil {
		t.Fatalf("acme ExchangeCode() error = %v", err)
	}
	if fx.tokens.Retrieve(ctx, "acme") == nil || fx.tokens.Retrieve(ctx, "default") != nil {
		t.Error("tokens stored under the wrong context key")
	}
}
