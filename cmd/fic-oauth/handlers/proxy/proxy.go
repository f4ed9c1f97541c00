// Package proxy forwards authenticated read requests to Fatture in Cloud
// API services resolved by name
package proxy

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/common"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/logging"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/services"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/session"
)

// forwarded response headers
var copyHeaders = []string{"Content-Type", "Retry-After", "X-RateLimit-Remaining"}

// RegistryFunc returns the service registry for a context key
type RegistryFunc func(contextKey string) *services.Registry

// Handler proxies GET /api/{service}/*
type Handler struct {
	registries RegistryFunc
	localizer  oautherr.Localizer
	locale     string
}

// Config contains handler configuration options
type Config struct {
	Registries RegistryFunc
	Localizer  oautherr.Localizer
	Locale     string
}

// New creates a proxy handler
func New(cfg Config) *Handler {
	return &Handler{
		registries: cfg.Registries,
		localizer:  cfg.Localizer,
		locale:     cfg.Locale,
	}
}

// Services handles GET /api and lists the supported service names
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, map[string]any{"services": services.Names()})
}

// ServeHTTP handles GET /api/{service}/*
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	name := chi.URLParam(r, "service")

	handle, err := h.registries(common.ContextKey(ctx)).Make(ctx, name)
	switch {
	case errors.Is(err, services.ErrUnsupportedService):
		common.WriteJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"error":   "unsupported_service",
			"message": err.Error(),
		})
		return
	case errors.Is(err, services.ErrMissingCompany):
		common.WriteJSON(w, http.StatusConflict, map[string]string{
			"status":  "error",
			"error":   "missing_company",
			"message": err.Error(),
		})
		return
	case err != nil:
		common.WriteOAuthError(w, err, h.localizer, common.Locale(r, h.locale))
		return
	}

	req, err := handle.NewRequest(ctx, http.MethodGet, chi.URLParam(r, "*"), nil)
	if errors.Is(err, services.ErrInvalidPath) {
		common.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"error":   "invalid_path",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		common.WriteOAuthError(w, err, h.localizer, common.Locale(r, h.locale))
		return
	}
	req.URL.RawQuery = r.URL.RawQuery

	resp, err := handle.Do(req)
	if err != nil {
		logger.Warn("upstream request failed", "service", name, "error", err)
		// token source failures arrive wrapped in *url.Error
		if _, ok := oautherr.As(err); !ok && !errors.Is(err, session.ErrNotAuthenticated) {
			err = oautherr.NetworkFailure(err)
		}
		common.WriteOAuthError(w, err, h.localizer, common.Locale(r, h.locale))
		return
	}
	defer resp.Body.Close()

	for _, k := range copyHeaders {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Warn("copying upstream response", "service", name, "error", err)
	}
}
