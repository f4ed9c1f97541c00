package session

import (
	"fmt"
	"log/slog"
)

// Option configures the facade
type Option func(*Facade)

// WithContextKey binds the facade to a tenant context key
func WithContextKey(key string) Option {
	return func(s *Facade) {
		if key != "" {
			s.contextKey = key
		}
	}
}

// WithManualToken switches the facade to manual mode with a static token
func WithManualToken(token string) Option {
	return func(s *Facade) {
		s.manualToken = token
	}
}

// WithCompanyContext sets the initial company context
func WithCompanyContext(v any) Option {
	return func(s *Facade) {
		if v != nil {
			s.company.set(fmt.Sprint(v))
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Facade) {
		if logger != nil {
			s.logger = logger
		}
	}
}
