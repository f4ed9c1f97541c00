package oautherr

import "net/http"

// Localizer resolves user-facing messages for a category and code
type Localizer interface {
	Message(category, code, locale string) string
}

// RetryInfo is the retry block of an error response
type RetryInfo struct {
	Retryable  bool `json:"retryable"`
	RetryAfter *int `json:"retry_after"`
	MaxRetries *int `json:"max_retries"`
}

// ErrorResponse is the JSON payload returned to the host's clients
type ErrorResponse struct {
	Status          string     `json:"status"`
	Error           string     `json:"error"`
	Message         string     `json:"message"`
	UserMessage     string     `json:"user_message"`
	Retry           *RetryInfo `json:"retry,omitempty"`
	SuggestedAction string     `json:"suggested_action,omitempty"`
}

// TokenData summarizes a stored token without exposing it
type TokenData struct {
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	HasRefreshToken bool   `json:"has_refresh_token"`
}

// SuccessPayload is the JSON payload for a completed callback
type SuccessPayload struct {
	Status string    `json:"status"`
	Data   TokenData `json:"data"`
}

// Response builds the error payload. User text comes only from the
// localizer; the provider description is never included.
func Response(e *Error, l Localizer, locale string) ErrorResponse {
	resp := ErrorResponse{
		Status:          "error",
		Error:           e.Code,
		Message:         e.Message(),
		SuggestedAction: e.SuggestedAction(),
	}
	if l != nil {
		resp.UserMessage = l.Message(string(e.Category), e.Code, locale)
	}
	if e.Retryable {
		resp.Retry = &RetryInfo{
			Retryable:  true,
			RetryAfter: e.RetryAfter,
			MaxRetries: e.MaxRetries,
		}
	}
	return resp
}

// SuccessResponse builds the callback success payload
func SuccessResponse(expiresIn int, hasRefreshToken bool) SuccessPayload {
	if expiresIn < 0 {
		expiresIn = 0
	}
	return SuccessPayload{
		Status: "success",
		Data: TokenData{
			TokenType:       "Bearer",
			ExpiresIn:       expiresIn,
			HasRefreshToken: hasRefreshToken,
		},
	}
}

// ResponseStatus is the HTTP status to send for e. Codes with no HTTP
// status of their own (network failures) map to 502.
func ResponseStatus(e *Error) int {
	if e.HTTPStatus == 0 {
		return http.StatusBadGateway
	}
	return e.HTTPStatus
}
