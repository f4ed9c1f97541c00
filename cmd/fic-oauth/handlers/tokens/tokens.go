// Package tokens reports and manages the token lifecycle of a context key
package tokens

import (
	"net/http"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/common"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/logging"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
)

// Status describes the token state of one context key
type Status struct {
	ContextKey string `json:"context_key"`
	Mode       string `json:"mode"`
	Expired    bool   `json:"expired"`
	ExpiresIn  int    `json:"expires_in"`
	CompanyID  string `json:"company_id,omitempty"`
}

// Handler serves the status, refresh and clear endpoints
type Handler struct {
	sessions  common.SessionFunc
	localizer oautherr.Localizer
	locale    string
}

// Config contains handler configuration options
type Config struct {
	Sessions  common.SessionFunc
	Localizer oautherr.Localizer
	Locale    string
}

// New creates the token lifecycle handlers
func New(cfg Config) *Handler {
	return &Handler{
		sessions:  cfg.Sessions,
		localizer: cfg.Localizer,
		locale:    cfg.Locale,
	}
}

// Status handles GET /oauth/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions(common.ContextKey(r.Context()))
	common.WriteJSON(w, http.StatusOK, h.status(r, sess))
}

// Refresh handles POST /oauth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.sessions(common.ContextKey(ctx))

	if err := sess.EnsureFreshToken(ctx); err != nil {
		logging.FromContext(ctx).Warn("refresh failed", "error", err)
		common.WriteOAuthError(w, err, h.localizer, common.Locale(r, h.locale))
		return
	}
	common.WriteJSON(w, http.StatusOK, h.status(r, sess))
}

// Clear handles POST /oauth/clear
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.sessions(common.ContextKey(ctx))

	if err := sess.ClearSession(ctx); err != nil {
		logging.FromContext(ctx).Error("clearing session", "error", err)
		common.WriteOAuthError(w, oautherr.NetworkFailure(err), h.localizer, common.Locale(r, h.locale))
		return
	}
	common.WriteJSON(w, http.StatusOK, h.status(r, sess))
}

func (h *Handler) status(r *http.Request, sess common.Session) Status {
	ctx := r.Context()
	return Status{
		ContextKey: sess.ContextKey(),
		Mode:       sess.Mode().String(),
		Expired:    sess.IsTokenExpired(ctx),
		ExpiresIn:  sess.ExpiresIn(ctx),
		CompanyID:  sess.CompanyContext(),
	}
}
