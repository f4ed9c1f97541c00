// Package services resolves Fatture in Cloud API service names into
// authenticated HTTP handles
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Name identifies one API service
type Name string

// Supported services
const (
	Clients           Name = "clients"
	Suppliers         Name = "suppliers"
	Products          Name = "products"
	IssuedDocuments   Name = "issued_documents"
	ReceivedDocuments Name = "received_documents"
	Receipts          Name = "receipts"
	Taxes             Name = "taxes"
	Info              Name = "info"
	Companies         Name = "companies"
	User              Name = "user"
	Settings          Name = "settings"
	Archive           Name = "archive"
	Cashbook          Name = "cashbook"
	PriceLists        Name = "price_lists"
	Webhooks          Name = "webhooks"
)

var (
	// ErrUnsupportedService is returned for names outside the fixed set
	ErrUnsupportedService = errors.New("unsupported service")
	// ErrMissingCompany is returned for company scoped services when no
	// company context is set
	ErrMissingCompany = errors.New("company context not set")
	// ErrInvalidPath is returned for request paths that could resolve
	// outside the service base URL
	ErrInvalidPath = errors.New("invalid request path")
)

// DefaultTimeout bounds every API request made through a Handle
const DefaultTimeout = 30 * time.Second

type constructor func(r *Registry, company string) (*Handle, error)

var constructors = map[Name]constructor{
	Clients:           companyScoped(Clients, "/entities/clients"),
	Suppliers:         companyScoped(Suppliers, "/entities/suppliers"),
	Products:          companyScoped(Products, "/products"),
	IssuedDocuments:   companyScoped(IssuedDocuments, "/issued_documents"),
	ReceivedDocuments: companyScoped(ReceivedDocuments, "/received_documents"),
	Receipts:          companyScoped(Receipts, "/receipts"),
	Taxes:             companyScoped(Taxes, "/taxes"),
	Info:              global(Info, "/info"),
	Companies:         companyScoped(Companies, "/company"),
	User:              global(User, "/user"),
	Settings:          companyScoped(Settings, "/settings"),
	Archive:           companyScoped(Archive, "/archive"),
	Cashbook:          companyScoped(Cashbook, "/cashbook"),
	PriceLists:        companyScoped(PriceLists, "/price_lists"),
	Webhooks:          companyScoped(Webhooks, "/subscriptions"),
}

// Names lists every supported service in lexical order
func Names() []Name {
	names := make([]Name, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ParseName validates a service name
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := constructors[n]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedService, s)
	}
	return n, nil
}

// Session supplies tokens and the company the registry builds handles for
type Session interface {
	TokenSource(ctx context.Context) oauth2.TokenSource
	CompanyContext() string
}

// Registry builds service handles sharing one session
type Registry struct {
	session Session
	apiURL  string
	base    http.RoundTripper
	timeout time.Duration
}

// Option configures the registry
type Option func(*Registry)

// WithTransport sets the round tripper under the OAuth2 transport
func WithTransport(rt http.RoundTripper) Option {
	return func(r *Registry) {
		if rt != nil {
			r.base = rt
		}
	}
}

// WithTimeout sets the per request timeout
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry creates a registry for the API rooted at apiURL
func NewRegistry(session Session, apiURL string, opts ...Option) *Registry {
	r := &Registry{
		session: session,
		apiURL:  strings.TrimRight(apiURL, "/"),
		base:    http.DefaultTransport,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Make returns an authenticated handle for the named service
func (r *Registry) Make(ctx context.Context, name string) (*Handle, error) {
	n, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	return constructors[n](r.withContext(ctx), r.session.CompanyContext())
}

func (r *Registry) withContext(ctx context.Context) *Registry {
	clone := *r
	clone.base = &oauth2.Transport{
		Source: r.session.TokenSource(ctx),
		Base:   r.base,
	}
	return &clone
}

// Handle is an authenticated client bound to one service base URL
type Handle struct {
	Name    Name
	BaseURL string
	Company string
	Client  *http.Client
}

// NewRequest builds a request for path relative to the service base URL.
// Dot segments are rejected with ErrInvalidPath.
func (h *Handle) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	target := h.BaseURL
	if path != "" {
		target += "/" + strings.TrimLeft(path, "/")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", h.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// checkPath rejects segments that decode to a dot segment or smuggle a
// separator
func checkPath(p string) error {
	for _, seg := range strings.Split(p, "/") {
		dec, err := url.PathUnescape(seg)
		if err != nil || dec == "." || dec == ".." || strings.ContainsAny(dec, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}

// Do sends req with the handle's authenticated client
func (h *Handle) Do(req *http.Request) (*http.Response, error) {
	return h.Client.Do(req)
}

func companyScoped(name Name, path string) constructor {
	return func(r *Registry, company string) (*Handle, error) {
		if company == "" {
			return nil, fmt.Errorf("%s: %w", name, ErrMissingCompany)
		}
		return r.handle(name, "/c/"+url.PathEscape(company)+path, company), nil
	}
}

func global(name Name, path string) constructor {
	return func(r *Registry, company string) (*Handle, error) {
		return r.handle(name, path, company), nil
	}
}

func (r *Registry) handle(name Name, path, company string) *Handle {
	return &Handle{
		Name:    name,
		BaseURL: r.apiURL + path,
		Company: company,
		Client: &http.Client{
			Transport: r.base,
			Timeout:   r.timeout,
		},
	}
}
