package common

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/session"
)

// ErrorCodeNotAuthenticated is reported when no token is stored
const ErrorCodeNotAuthenticated = "not_authenticated"

// SetJSONHeaders sets the headers every JSON response carries
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteJSON sends v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding response", "error", err)
		WriteJSONError(w)
		return
	}
	SetJSONHeaders(w)
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteOAuthError sends err as a taxonomy error payload. Errors outside the
// taxonomy are reported as server_error without their text.
func WriteOAuthError(w http.ResponseWriter, err error, l oautherr.Localizer, locale string) {
	if errors.Is(err, session.ErrNotAuthenticated) {
		resp := oautherr.ErrorResponse{
			Status:          "error",
			Error:           ErrorCodeNotAuthenticated,
			Message:         "No access token is stored for this context",
			SuggestedAction: "reauthorize",
		}
		if l != nil {
			resp.UserMessage = l.Message(string(oautherr.CategoryAuthorization), ErrorCodeNotAuthenticated, locale)
		}
		WriteJSON(w, http.StatusUnauthorized, resp)
		return
	}

	oe, ok := oautherr.As(err)
	if !ok {
		oe = oautherr.New(oautherr.CodeServerError, "", oautherr.WithCause(err))
	}
	WriteJSON(w, oautherr.ResponseStatus(oe), oautherr.Response(oe, l, locale))
}

// WriteJSONError handles JSON encoding failures with a fixed body
func WriteJSONError(w http.ResponseWriter) {
	SetJSONHeaders(w)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"status":"error","error":"server_error"}`))
}

// Locale returns the first language tag of Accept-Language, or fallback
func Locale(r *http.Request, fallback string) string {
	header := r.Header.Get("Accept-Language")
	if header == "" {
		return fallback
	}
	tag, _, _ := strings.Cut(header, ",")
	tag, _, _ = strings.Cut(tag, ";")
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == "*" {
		return fallback
	}
	return tag
}
