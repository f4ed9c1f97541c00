// Package oautherr classifies OAuth2 failures into a closed taxonomy of
// categories with retry hints, safe logging context and user messaging keys.
package oautherr

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Category groups error codes by the phase of the flow that produced them
type Category string

// Categories of the taxonomy
const (
	CategoryAuthorization Category = "AUTHORIZATION"
	CategoryTokenExchange Category = "TOKEN_EXCHANGE"
	CategoryTokenRefresh  Category = "TOKEN_REFRESH"
	CategoryConfiguration Category = "CONFIGURATION"
)

// Authorization endpoint error codes per RFC 6749 section 4.1.2.1
const (
	CodeAccessDenied            = "access_denied"
	CodeInvalidRequest          = "invalid_request"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeInvalidScope            = "invalid_scope"
	CodeServerError             = "server_error"
	CodeTemporarilyUnavailable  = "temporarily_unavailable"
)

// Token exchange error codes
const (
	CodeInvalidCode              = "invalid_code"
	CodeInvalidClientCredentials = "invalid_client_credentials"
	CodeNetworkFailure           = "network_failure"
)

// Token refresh error codes
const (
	CodeInvalidRefreshToken        = "invalid_refresh_token"
	CodeClientAuthenticationFailed = "client_authentication_failed"
	CodeTokenRevoked               = "token_revoked"
)

// Configuration error codes
const (
	CodeMissingConfiguration   = "missing_configuration"
	CodeInvalidRedirectURL     = "invalid_redirect_url"
	CodeMalformedConfiguration = "malformed_configuration"
)

// Reasons attached to locally detected errors
const (
	ReasonCSRF             = "CSRF validation failed"
	ReasonMissingParameter = "missing required callback parameter"
)

// Context keys set by the taxonomy itself
const (
	ContextOriginalCode = "original_error_code"
)

type classification struct {
	category   Category
	httpStatus int
	retryable  bool
	retryAfter int
	maxRetries int
}

// classifications is the fixed code table. Category, status and retry
// behaviour are a pure function of the code.
var classifications = map[string]classification{
	CodeAccessDenied:            {category: CategoryAuthorization, httpStatus: 401},
	CodeInvalidRequest:          {category: CategoryAuthorization, httpStatus: 400},
	CodeUnauthorizedClient:      {category: CategoryAuthorization, httpStatus: 401},
	CodeUnsupportedResponseType: {category: CategoryAuthorization, httpStatus: 400},
	CodeInvalidScope:            {category: CategoryAuthorization, httpStatus: 400},
	CodeServerError:             {category: CategoryAuthorization, httpStatus: 500, retryable: true, retryAfter: 30},
	CodeTemporarilyUnavailable:  {category: CategoryAuthorization, httpStatus: 503, retryable: true, retryAfter: 60},

	CodeInvalidCode:              {category: CategoryTokenExchange, httpStatus: 400},
	CodeInvalidClientCredentials: {category: CategoryTokenExchange, httpStatus: 401},
	CodeNetworkFailure:           {category: CategoryTokenExchange, httpStatus: 0, retryable: true, retryAfter: 10, maxRetries: 3},

	CodeInvalidRefreshToken:        {category: CategoryTokenRefresh, httpStatus: 401},
	CodeClientAuthenticationFailed: {category: CategoryTokenRefresh, httpStatus: 401},
	CodeTokenRevoked:               {category: CategoryTokenRefresh, httpStatus: 401},

	CodeMissingConfiguration:   {category: CategoryConfiguration, httpStatus: 500},
	CodeInvalidRedirectURL:     {category: CategoryConfiguration, httpStatus: 500},
	CodeMalformedConfiguration: {category: CategoryConfiguration, httpStatus: 500},
}

// Error is a classified OAuth2 failure. Flow operations return it as their
// error value; callers inspect it with errors.As.
type Error struct {
	Code        string
	Category    Category
	HTTPStatus  int
	Retryable   bool
	RetryAfter  *int // seconds
	MaxRetries  *int
	Description string // raw provider text, never shown to end users
	Reason      string // locally generated, safe to display
	Context     map[string]any

	cause error
}

// Option customizes an Error at construction
type Option func(*Error)

// WithContext adds a diagnostic key/value to the error context
func WithContext(key string, value any) Option {
	return func(e *Error) {
		e.Context[key] = value
	}
}

// WithCause records the underlying error
func WithCause(err error) Option {
	return func(e *Error) {
		e.cause = err
	}
}

// WithReason sets a locally generated, display-safe reason
func WithReason(reason string) Option {
	return func(e *Error) {
		e.Reason = reason
	}
}

// New builds an Error for code. Unknown codes fall back to invalid_request
// semantics but keep the original code.
func New(code, description string, opts ...Option) *Error {
	e := &Error{
		Code:        code,
		Description: description,
		Context:     make(map[string]any),
	}

	c, known := classifications[code]
	if !known {
		c = classifications[CodeInvalidRequest]
		e.Context[ContextOriginalCode] = code
	}

	e.Category = c.category
	e.HTTPStatus = c.httpStatus
	e.Retryable = c.retryable
	if c.retryAfter > 0 {
		v := c.retryAfter
		e.RetryAfter = &v
	}
	if c.maxRetries > 0 {
		v := c.maxRetries
		e.MaxRetries = &v
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromProtocolError maps a provider-reported error code and description
// into the taxonomy
func FromProtocolError(rawCode, rawDescription string, opts ...Option) *Error {
	code := strings.TrimSpace(rawCode)
	if !IsKnownCode(code) {
		slog.Warn("unrecognized oauth2 error code",
			"original_error_code", rawCode,
			"fallback_code", CodeInvalidRequest)
	}
	return New(code, rawDescription, opts...)
}

// IsKnownCode reports whether code is part of the fixed table
func IsKnownCode(code string) bool {
	_, ok := classifications[code]
	return ok
}

// CategoryOf returns the category for code, AUTHORIZATION for unknown codes
func CategoryOf(code string) Category {
	if c, ok := classifications[code]; ok {
		return c.category
	}
	return CategoryAuthorization
}

// CSRF returns the error reported when a callback state does not match
func CSRF() *Error {
	return New(CodeInvalidRequest, "", WithReason(ReasonCSRF))
}

// MissingParameter returns the error for an absent callback parameter
func MissingParameter(names ...string) *Error {
	return New(CodeInvalidRequest, "",
		WithReason(ReasonMissingParameter),
		WithContext("missing_parameters", names))
}

// NetworkFailure wraps a transport or infrastructure error
func NetworkFailure(cause error) *Error {
	return New(CodeNetworkFailure, "", WithCause(cause))
}

// MissingConfiguration reports incomplete client configuration
func MissingConfiguration(fields ...string) *Error {
	return New(CodeMissingConfiguration, "",
		WithReason("OAuth2 client is not configured"),
		WithContext("missing_fields", fields))
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "oauth2 %s error: %s", strings.ToLower(string(e.Category)), e.Code)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

// Message is a display-safe summary that never includes provider text
func (e *Error) Message() string {
	msg := fmt.Sprintf("OAuth2 %s error: %s", strings.ToLower(strings.ReplaceAll(string(e.Category), "_", " ")), e.Code)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error by code, so errors.Is(err, oautherr.New(code, ""))
// works across wrapping
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// OriginalCode returns the provider code when the error fell back from an
// unrecognized one
func (e *Error) OriginalCode() string {
	if v, ok := e.Context[ContextOriginalCode].(string); ok {
		return v
	}
	return e.Code
}

// SuggestedAction hints at what the host should do next
func (e *Error) SuggestedAction() string {
	switch {
	case e.Retryable:
		return "retry_later"
	case !IsKnownCode(e.Code):
		return "contact_support"
	case e.Category == CategoryConfiguration,
		e.Code == CodeInvalidClientCredentials,
		e.Code == CodeUnauthorizedClient,
		e.Code == CodeClientAuthenticationFailed:
		return "check_configuration"
	default:
		return "reauthorize"
	}
}

// As extracts an *Error from err
func As(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// HasCode reports whether err is an *Error with the given code
func HasCode(err error, code string) bool {
	oe, ok := As(err)
	return ok && oe.Code == code
}
