package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/common"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/messages"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/services"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/session"
)

type fakeSession struct {
	company string
	err     error
}

func (f *fakeSession) TokenSource(context.Context) oauth2.TokenSource { return f }

func (f *fakeSession) Token() (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "upstream-at", TokenType: "Bearer"}, nil
}

func (f *fakeSession) CompanyContext() string { return f.company }

func newRouter(sess *fakeSession, apiURL string) http.Handler {
	h := New(Config{
		Registries: func(string) *services.Registry { return services.NewRegistry(sess, apiURL) },
		Localizer:  messages.Default(),
		Locale:     "en",
	})
	r := chi.NewRouter()
	r.Use(common.ContextKeyMiddleware)
	r.Get("/api", h.Services)
	r.Get("/api/{service}/*", h.ServeHTTP)
	return r
}

func TestProxy_Forwards(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer upstream.Close()

	router := newRouter(&fakeSession{company: "555"}, upstream.URL)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/clients/list?page=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if gotAuth != "Bearer upstream-at" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/c/555/entities/clients/list" || gotQuery != "page=2" {
		t.Errorf("upstream request = %s?%s", gotPath, gotQuery)
	}
	if w.Body.String() != `{"data":[]}` {
		t.Errorf("body = %s", w.Body)
	}
}

func TestProxy_Errors(t *testing.T) {
	tests := []struct {
		name       string
		sess       *fakeSession
		path       string
		wantStatus int
		wantError  string
	}{
		{"unsupported", &fakeSession{company: "1"}, "/api/invoices_v3/x", http.StatusNotFound, "unsupported_service"},
		{"no company", &fakeSession{}, "/api/products/x", http.StatusConflict, "missing_company"},
		{"not authenticated", &fakeSession{err: session.ErrNotAuthenticated}, "/api/user/x", http.StatusUnauthorized, common.ErrorCodeNotAuthenticated},
		{"dot segments", &fakeSession{company: "1"}, "/api/products/../../user/info", http.StatusBadRequest, "invalid_path"},
		{"encoded dot segments", &fakeSession{company: "1"}, "/api/products/%2e%2e/%2e%2e/user", http.StatusBadRequest, "invalid_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(tt.sess, "http://127.0.0.1:1")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]any
			_ = json.NewDecoder(w.Body).Decode(&body)
			if body["error"] != tt.wantError {
				t.Errorf("error = %v, want %s", body["error"], tt.wantError)
			}
		})
	}
}

func TestProxy_Services(t *testing.T) {
	router := newRouter(&fakeSession{}, "http://unused")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))

	var body struct {
		Services []string `json:"services"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Services) != len(services.Names()) {
		t.Errorf("services = %v", body.Services)
	}
}
