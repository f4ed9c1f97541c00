// Package config loads the client settings from the environment
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
)

// Prefix is prepended to every environment variable name
const Prefix = "FIC"

// Redirect URL resolution orders
const (
	// ResolveRoute tries the override, then the host's public callback
	// route, then the application base URL
	ResolveRoute = "route"
	// ResolveBase tries the override, then the application base URL
	ResolveBase = "base"
)

// Config holds settings loaded from FIC_* environment variables
type Config struct {
	ClientID           string        `envconfig:"CLIENT_ID"`
	ClientSecret       string        `envconfig:"CLIENT_SECRET"`
	RedirectURL        string        `envconfig:"REDIRECT_URL"`
	PublicURL          string        `envconfig:"PUBLIC_URL"`
	BaseURL            string        `envconfig:"BASE_URL"`
	CallbackPath       string        `envconfig:"CALLBACK_PATH" default:"/oauth/callback"`
	RedirectResolution string        `envconfig:"REDIRECT_RESOLUTION" default:"route"`
	AccessToken        string        `envconfig:"ACCESS_TOKEN"`
	AuthURL            string        `envconfig:"AUTH_URL" default:"https://api-v2.fattureincloud.it/oauth/authorize"`
	TokenURL           string        `envconfig:"TOKEN_URL" default:"https://api-v2.fattureincloud.it/oauth/token"`
	APIURL             string        `envconfig:"API_URL" default:"https://api-v2.fattureincloud.it"`
	DefaultScopes      []string      `envconfig:"DEFAULT_SCOPES"`
	EncryptionKey      string        `envconfig:"ENCRYPTION_KEY" required:"true"`
	RedisURL           string        `envconfig:"REDIS_URL"`
	StateTTL           time.Duration `envconfig:"STATE_TTL" default:"10m"`
	TokenRetention     time.Duration `envconfig:"TOKEN_RETENTION" default:"0"`
	HTTPTimeout        time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	Port               int           `envconfig:"PORT" default:"8080"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info"`
	Locale             string        `envconfig:"LOCALE" default:"en"`
	MessagesPath       string        `envconfig:"MESSAGES_PATH"`
	CompanyID          string        `envconfig:"COMPANY_ID"`
	MetricsEnabled     bool          `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads and validates the configuration
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.EncryptionKey == "" {
		return nil, oautherr.MissingConfiguration("encryption_key")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would make the flow misbehave rather than
// merely stay uninitialized
func (c *Config) Validate() error {
	switch c.RedirectResolution {
	case ResolveRoute, ResolveBase:
	default:
		return oautherr.New(oautherr.CodeMalformedConfiguration, "",
			oautherr.WithReason("unknown redirect resolution"),
			oautherr.WithContext("redirect_resolution", c.RedirectResolution))
	}

	for name, raw := range map[string]string{"auth_url": c.AuthURL, "token_url": c.TokenURL} {
		if !isAbsoluteHTTP(raw) {
			return oautherr.New(oautherr.CodeMalformedConfiguration, "",
				oautherr.WithReason("endpoint must be an absolute http(s) URL"),
				oautherr.WithContext("setting", name))
		}
	}

	if redirect := c.ResolveRedirectURL(); redirect != "" && !isAbsoluteHTTP(redirect) {
		return oautherr.New(oautherr.CodeInvalidRedirectURL, "",
			oautherr.WithReason("redirect URL must be an absolute http(s) URL"),
			oautherr.WithContext("redirect_url", redirect))
	}
	return nil
}

// ManualMode reports whether a static access token bypasses the flow
func (c *Config) ManualMode() bool {
	return c.AccessToken != ""
}

// ResolveRedirectURL returns the callback URL per the configured
// resolution order, or "" if nothing is configured
func (c *Config) ResolveRedirectURL() string {
	if c.RedirectURL != "" {
		return c.RedirectURL
	}
	if c.RedirectResolution != ResolveBase && c.PublicURL != "" {
		return joinURL(c.PublicURL, c.CallbackPath)
	}
	if c.BaseURL != "" {
		return joinURL(c.BaseURL, c.CallbackPath)
	}
	return ""
}

// Scopes returns the configured default scopes with blanks removed
func (c *Config) Scopes() []string {
	var out []string
	for _, s := range c.DefaultScopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinURL(base, path string) string {
	if path == "" {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
