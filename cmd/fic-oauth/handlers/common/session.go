package common

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/logging"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/session"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/state"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/tokenstore"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/validation"
)

const (
	// SessionCookie carries the user agent's session id
	SessionCookie = "fic_session"
	// ContextKeyHeader selects the tenant a request operates on
	ContextKeyHeader = "X-Context-Key"
	// ContextKeyParam selects the tenant on browser navigations that
	// cannot set headers
	ContextKeyParam = "context_key"
	// ContextKeyCookie remembers the tenant of a pending authorization
	// until the provider redirects back
	ContextKeyCookie = "fic_context"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	contextKeyKey
)

// Session is the part of the session facade handlers use
type Session interface {
	BeginAuthorization(ctx context.Context, sessionID string, scopes []string) (string, error)
	HandleCallback(ctx context.Context, sessionID string, query url.Values) (*tokenstore.Record, error)
	EnsureFreshToken(ctx context.Context) error
	ClearSession(ctx context.Context) error
	IsTokenExpired(ctx context.Context) bool
	ExpiresIn(ctx context.Context) int
	Mode() session.Mode
	ContextKey() string
	CompanyContext() string
}

// SessionFunc returns the session bound to a context key
type SessionFunc func(contextKey string) Session

// SessionID returns the session id set by SessionMiddleware
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// ContextKey returns the tenant key set by ContextKeyMiddleware
func ContextKey(ctx context.Context) string {
	if key, ok := ctx.Value(contextKeyKey).(string); ok {
		return key
	}
	return state.DefaultContextKey
}

// SessionMiddleware assigns every user agent a session id cookie
func SessionMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(SessionCookie); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionIDKey, id)))
		})
	}
}

// ContextKeyMiddleware resolves and validates the tenant key and attaches a
// request scoped logger. The header wins over the query parameter, which
// wins over the pending authorization cookie.
func ContextKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := resolveContextKey(r)
		if err := validation.ValidateContextKey(key); err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]string{
				"status":  "error",
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyKey, key)
		logger := logging.WithRequest(logging.FromContext(ctx), key, SessionID(ctx))
		next.ServeHTTP(w, r.WithContext(logging.NewContext(ctx, logger)))
	})
}

func resolveContextKey(r *http.Request) string {
	if key := r.Header.Get(ContextKeyHeader); key != "" {
		return key
	}
	if key := r.URL.Query().Get(ContextKeyParam); key != "" {
		return key
	}
	if c, err := r.Cookie(ContextKeyCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return state.DefaultContextKey
}

// BindContextKey records the tenant of an authorization attempt in a cookie
// scoped to the callback path, so the provider redirect resolves to the
// same state slot
func BindContextKey(w http.ResponseWriter, key, callbackPath string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ContextKeyCookie,
		Value:    key,
		Path:     callbackPath,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReleaseContextKey expires the cookie set by BindContextKey
func ReleaseContextKey(w http.ResponseWriter, callbackPath string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ContextKeyCookie,
		Value:    "",
		Path:     callbackPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
