// Package provider talks to the OAuth2 authorization server on behalf of
// the flow and normalizes its errors into the oautherr taxonomy
package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Default Fatture in Cloud endpoints
const (
	DefaultAuthURL  = "https://api-v2.fattureincloud.it/oauth/authorize"
	DefaultTokenURL = "https://api-v2.fattureincloud.it/oauth/token"
)

// Client is the protocol client used by the flow
type Client interface {
	// AuthorizationURL builds the URL the user agent is redirected to
	AuthorizationURL(clientID, redirectURL string, scopes []string, state string) string

	// ExchangeCode trades an authorization code for tokens
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// ExchangeRefreshToken obtains a new access token from a refresh token
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Config holds the client registration and endpoints
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// OAuth2Client implements Client with golang.org/x/oauth2
type OAuth2Client struct {
	config     oauth2.Config
	httpClient *http.Client
}

// Option configures an OAuth2Client
type Option func(*OAuth2Client)

// WithHTTPClient sets the HTTP client used for token requests
func WithHTTPClient(c *http.Client) Option {
	return func(o *OAuth2Client) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout sets the token request timeout on a default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(o *OAuth2Client) {
		if d > 0 {
			o.httpClient = &http.Client{Timeout: d}
		}
	}
}

// New creates a protocol client. Empty endpoints default to Fatture in Cloud.
func New(cfg Config, opts ...Option) *OAuth2Client {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	c := &OAuth2Client{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizationURL builds the provider authorization URL. Scopes are sent
// space separated.
func (c *OAuth2Client) AuthorizationURL(clientID, redirectURL string, scopes []string, state string) string {
	cfg := c.config
	if clientID != "" {
		cfg.ClientID = clientID
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	cfg.Scopes = normalizeScopes(scopes)
	return cfg.AuthCodeURL(state)
}

// ExchangeCode trades code for a token at the token endpoint
func (c *OAuth2Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.config.Exchange(c.withClient(ctx), code)
	if err != nil {
		return nil, normalize(err, opExchange)
	}
	return tok, nil
}

// ExchangeRefreshToken performs a refresh_token grant
func (c *OAuth2Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := c.config.TokenSource(c.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, normalize(err, opRefresh)
	}
	return tok, nil
}

func (c *OAuth2Client) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		for _, part := range strings.Fields(s) {
			if !seen[part] {
				seen[part] = true
				out = append(out, part)
			}
		}
	}
	return out
}
