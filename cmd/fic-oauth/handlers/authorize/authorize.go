// Package authorize starts the authorization code grant by redirecting the
// user agent to Fatture in Cloud
package authorize

import (
	"net/http"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/common"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/logging"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
)

// Handler redirects to the provider authorization endpoint
type Handler struct {
	sessions     common.SessionFunc
	localizer    oautherr.Localizer
	locale       string
	callbackPath string
	secure       bool
}

// Config contains handler configuration options
type Config struct {
	Sessions  common.SessionFunc
	Localizer oautherr.Localizer
	Locale    string
	// CallbackPath scopes the pending tenant cookie; defaults to
	// /oauth/callback
	CallbackPath string
	// Secure marks the tenant cookie HTTPS only
	Secure bool
}

// New creates an authorization handler
func New(cfg Config) *Handler {
	path := cfg.CallbackPath
	if path == "" {
		path = "/oauth/callback"
	}
	return &Handler{
		sessions:     cfg.Sessions,
		localizer:    cfg.Localizer,
		locale:       cfg.Locale,
		callbackPath: path,
		secure:       cfg.Secure,
	}
}

// ServeHTTP handles GET /oauth/authorize?scope=...&context_key=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.sessions(common.ContextKey(ctx))

	target, err := sess.BeginAuthorization(ctx, common.SessionID(ctx), r.URL.Query()["scope"])
	if err != nil {
		logging.FromContext(ctx).Warn("authorization not started", "error", err)
		common.WriteOAuthError(w, err, h.localizer, common.Locale(r, h.locale))
		return
	}

	common.BindContextKey(w, sess.ContextKey(), h.callbackPath, h.secure)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
