// Package callback completes the authorization code grant when Fatture in
// Cloud redirects back to the host
package callback

import (
	"net/http"
	"time"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/common"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/logging"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
)

// Handler processes provider callbacks
type Handler struct {
	sessions  common.SessionFunc
	localizer oautherr.Localizer
	locale    string
	now       func() time.Time
	secure    bool
}

// Config contains handler configuration options
type Config struct {
	Sessions  common.SessionFunc
	Localizer oautherr.Localizer
	Locale    string
	Now       func() time.Time
	// Secure must match the flag the pending tenant cookie was set with
	Secure bool
}

// New creates a callback handler
func New(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		sessions:  cfg.Sessions,
		localizer: cfg.Localizer,
		locale:    cfg.Locale,
		now:       now,
		secure:    cfg.Secure,
	}
}

// ServeHTTP handles GET /oauth/callback
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	sess := h.sessions(common.ContextKey(ctx))

	rec, err := sess.HandleCallback(ctx, common.SessionID(ctx), r.URL.Query())
	if err != nil {
		if oe, ok := oautherr.As(err); ok {
			logger.Warn("callback failed", "error", oe)
		} else {
			logger.Error("callback failed", "error", err)
		}
		common.WriteOAuthError(w, err, h.localizer, common.Locale(r, h.locale))
		return
	}

	logger.Info("authorization completed", "has_refresh_token", rec.HasRefreshToken())
	common.ReleaseContextKey(w, r.URL.Path, h.secure)
	common.WriteJSON(w, http.StatusOK, oautherr.SuccessResponse(rec.ExpiresIn(h.now()), rec.HasRefreshToken()))
}
