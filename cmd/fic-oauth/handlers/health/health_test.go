package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	version := "1.0.0"
	ok := checkFunc(func(context.Context) error { return nil })

	tests := []struct {
		name     string
		checks   map[string]Checker
		wantCode int
		wantBody Response
	}{
		{
			name:     "healthy system",
			checks:   map[string]Checker{"session": ok},
			wantCode: http.StatusOK,
			wantBody: Response{
				Status:  "healthy",
				Version: version,
				Details: map[string]any{
					"session": map[string]any{"status": "healthy"},
				},
			},
		},
		{
			name: "store unavailable",
			checks: map[string]Checker{
				"session": checkFunc(func(context.Context) error {
					return errors.New("token cache health check failed: connection refused")
				}),
				"redis": ok,
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: Response{
				Status:  "unhealthy",
				Version: version,
				Details: map[string]any{
					"redis": map[string]any{"status": "healthy"},
					"session": map[string]any{
						"status":  "unhealthy",
						"message": "token cache health check failed: connection refused",
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := New(tt.checks).WithVersion(version)

			req := httptest.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Code; got != tt.wantCode {
				t.Errorf("Health handler status = %v, want %v", got, tt.wantCode)
			}
			if got := w.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Health handler Cache-Control = %v, want no-store", got)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Health handler Content-Type = %v, want application/json", got)
			}

			var got Response
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if diff := cmp.Diff(tt.wantBody, got); diff != "" {
				t.Errorf("Health handler response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
