package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/oautherr"
)

type operation int

const (
	opExchange operation = iota
	opRefresh
)

// token endpoint codes that mean different things per grant
const (
	codeInvalidGrant  = "invalid_grant"
	codeInvalidClient = "invalid_client"
)

// normalize maps token endpoint failures into the taxonomy
func normalize(err error, op operation) *oautherr.Error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fromRetrieveError(re, op)
	}

	var urlErr *url.Error
	var netErr net.Error
	switch {
	case errors.As(err, &urlErr),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return oautherr.NetworkFailure(err)
	default:
		// malformed success responses, e.g. missing access_token
		return oautherr.New(oautherr.CodeServerError, "", oautherr.WithCause(err))
	}
}

func fromRetrieveError(re *oauth2.RetrieveError, op operation) *oautherr.Error {
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}

	code := re.ErrorCode
	if code == "" {
		if status >= http.StatusInternalServerError || status == 0 {
			return oautherr.NetworkFailure(re)
		}
		code = codeForStatus(status)
	}

	return oautherr.FromProtocolError(mapCode(code, op), re.ErrorDescription,
		oautherr.WithCause(re),
		oautherr.WithContext("provider_error_code", re.ErrorCode),
		oautherr.WithContext("http_status", status))
}

func mapCode(code string, op operation) string {
	switch code {
	case codeInvalidGrant:
		if op == opRefresh {
			return oautherr.CodeInvalidRefreshToken
		}
		return oautherr.CodeInvalidCode
	case codeInvalidClient:
		if op == opRefresh {
			return oautherr.CodeClientAuthenticationFailed
		}
		return oautherr.CodeInvalidClientCredentials
	default:
		return code
	}
}

func codeForStatus(status int) string {
	if status == http.StatusUnauthorized {
		return codeInvalidClient
	}
	return codeInvalidGrant
}
