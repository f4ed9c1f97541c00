package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FIC_ENCRYPTION_KEY", "secret")
	t.Setenv("FIC_DEFAULT_SCOPES", "entity.clients:r, issued_documents.invoices:a")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 || cfg.StateTTL != 10*time.Minute || cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.CallbackPath != "/oauth/callback" || cfg.RedirectResolution != ResolveRoute {
		t.Errorf("callback defaults = %q/%q", cfg.CallbackPath, cfg.RedirectResolution)
	}
	if cfg.TokenRetention != 0 || !cfg.MetricsEnabled {
		t.Errorf("TokenRetention = %v, MetricsEnabled = %v", cfg.TokenRetention, cfg.MetricsEnabled)
	}
	if diff := cmp.Diff([]string{"entity.clients:r", "issued_documents.invoices:a"}, cfg.Scopes()); diff != "" {
		t.Errorf("Scopes() mismatch (-want +got):\n%s", diff)
	}
	if cfg.ManualMode() {
		t.Error("ManualMode() = true without access token")
	}
}

func TestLoad_RequiresEncryptionKey(t *testing.T) {
	t.Setenv("FIC_ENCRYPTION_KEY", "")
	if _, err := Load(); err == nil {
		t.Error("Load() expected error without encryption key")
	}
}

func TestResolveRedirectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "override_wins",
			cfg: Config{RedirectURL: "https://override/cb", PublicURL: "https://public",
				BaseURL: "https://base", CallbackPath: "/oauth/callback", RedirectResolution: ResolveRoute},
			want: "https://override/cb",
		},
		{
			name: "route_prefers_public_url",
			cfg: Config{PublicURL: "https://public/", BaseURL: "https://base",
				CallbackPath: "/oauth/callback", RedirectResolution: ResolveRoute},
			want: "https://public/oauth/callback",
		},
		{
			name: "route_falls_back_to_base",
			cfg:  Config{BaseURL: "https://base", CallbackPath: "oauth/callback", RedirectResolution: ResolveRoute},
			want: "https://base/oauth/callback",
		},
		{
			name: "base_ignores_public_url",
			cfg: Config{PublicURL: "https://public", BaseURL: "https://base",
				CallbackPath: "/oauth/callback", RedirectResolution: ResolveBase},
			want: "https://base/oauth/callback",
		},
		{
			name: "nothing_configured",
			cfg:  Config{CallbackPath: "/oauth/callback", RedirectResolution: ResolveRoute},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveRedirectURL(); got != tt.want {
				t.Errorf("ResolveRedirectURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		AuthURL:            "https://provider/oauth/authorize",
		TokenURL:           "https://provider/oauth/token",
		RedirectResolution: ResolveRoute,
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:     "bad_resolution",
			mutate:   func(c *Config) { c.RedirectResolution = "sideways" },
			wantCode: oautherr.CodeMalformedConfiguration,
		},
		{
			name:     "relative_redirect",
			mutate:   func(c *Config) { c.RedirectURL = "/callback" },
			wantCode: oautherr.CodeInvalidRedirectURL,
		},
		{
			name:     "bad_token_url",
			mutate:   func(c *Config) { c.TokenURL = "ftp://provider/token" },
			wantCode: oautherr.CodeMalformedConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !oautherr.HasCode(err, tt.wantCode) {
				t.Errorf("Validate() error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestManualMode(t *testing.T) {
	cfg := Config{AccessToken: "static"}
	if !cfg.ManualMode() {
		t.Error("ManualMode() = false with access token")
	}
}
