package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/authorize"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/callback"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/common"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/health"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/proxy"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/cmd/fic-oauth/handlers/tokens"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/config"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/flow"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/logging"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/messages"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/metrics"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/provider"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/services"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/session"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/state"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/tokenstore"
)

type server struct {
	cfg      *config.Config
	router   *chi.Mux
	facade   *session.Facade
	catalog  *messages.Catalog
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	redis    redis.UniversalClient
}

// newServer wires the stores, flow and session facade described by cfg.
// A nil redis client selects in-memory stores.
func newServer(cfg *config.Config, rdb redis.UniversalClient, logger *slog.Logger) (*server, error) {
	catalog := messages.Default()
	if cfg.MessagesPath != "" {
		var err error
		if catalog, err = messages.Load(cfg.MessagesPath); err != nil {
			return nil, err
		}
	}

	var stateStore state.Store
	var cache tokenstore.Cache
	if rdb != nil {
		stateStore = state.NewRedisStore(rdb)
		cache = tokenstore.NewRedisCache(rdb)
	} else {
		logger.Warn("REDIS_URL not set, using in-memory stores")
		stateStore = state.NewMemoryStore()
		cache = tokenstore.NewMemoryCache()
	}

	cipher, err := tokenstore.NewAESGCM([]byte(cfg.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("creating token cipher: %w", err)
	}

	var collector metrics.Collector = &metrics.NoopCollector{}
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.NewPrometheusCollector(reg)
		gatherer = reg
	}

	tokenStore := tokenstore.New(cache, cipher,
		tokenstore.WithRetention(cfg.TokenRetention),
		tokenstore.WithLogger(logger),
	)
	states := state.NewManager(stateStore,
		state.WithTTL(cfg.StateTTL),
		state.WithLogger(logger),
	)

	redirectURL := cfg.ResolveRedirectURL()
	client := provider.New(provider.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURL,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
	}, provider.WithTimeout(cfg.HTTPTimeout))

	f := flow.New(flow.Config{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		RedirectURL:   redirectURL,
		DefaultScopes: cfg.Scopes(),
	}, client, states, tokenStore,
		flow.WithLogger(logger),
		flow.WithMetrics(collector),
	)
	if f.State() != flow.StateReady && !cfg.ManualMode() {
		logger.Warn("oauth2 client not configured, authorization disabled")
	}

	facade := session.New(f, tokenStore,
		session.WithManualToken(cfg.AccessToken),
		session.WithCompanyContext(cfg.CompanyID),
		session.WithLogger(logger),
	)

	srv := &server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		facade:   facade,
		catalog:  catalog,
		gatherer: gatherer,
		logger:   logger,
		redis:    rdb,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(middleware.Timeout(30 * time.Second))
	srv.router.Use(srv.withLogger)

	srv.routes()

	return srv, nil
}

func (s *server) routes() {
	s.router.Method(http.MethodGet, "/health", health.New(map[string]health.Checker{
		"session": s.facade,
	}).WithVersion(Version))

	if s.gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	}

	sessions := func(key string) common.Session { return s.facade.ForContext(key) }
	secure := strings.HasPrefix(s.cfg.ResolveRedirectURL(), "https://")

	s.router.Group(func(r chi.Router) {
		r.Use(common.SessionMiddleware(secure))
		r.Use(common.ContextKeyMiddleware)

		r.Method(http.MethodGet, "/oauth/authorize", authorize.New(authorize.Config{
			Sessions:     sessions,
			Localizer:    s.catalog,
			Locale:       s.cfg.Locale,
			CallbackPath: s.callbackPath(),
			Secure:       secure,
		}))
		r.Method(http.MethodGet, s.callbackPath(), callback.New(callback.Config{
			Sessions:  sessions,
			Localizer: s.catalog,
			Locale:    s.cfg.Locale,
			Secure:    secure,
		}))

		th := tokens.New(tokens.Config{
			Sessions:  sessions,
			Localizer: s.catalog,
			Locale:    s.cfg.Locale,
		})
		r.Get("/oauth/status", th.Status)
		r.Post("/oauth/refresh", th.Refresh)
		r.Post("/oauth/clear", th.Clear)

		ph := proxy.New(proxy.Config{
			Registries: func(key string) *services.Registry {
				return services.NewRegistry(s.facade.ForContext(key), s.cfg.APIURL,
					services.WithTimeout(s.cfg.HTTPTimeout))
			},
			Localizer: s.catalog,
			Locale:    s.cfg.Locale,
		})
		r.Get("/api", ph.Services)
		r.Get("/api/{service}/*", ph.ServeHTTP)
	})
}

// callbackPath is the route the provider redirects back to
func (s *server) callbackPath() string {
	path := s.cfg.CallbackPath
	if path == "" {
		return "/oauth/callback"
	}
	return "/" + strings.TrimLeft(path, "/")
}

func (s *server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(logging.NewContext(r.Context(), logger)))
	})
}

func (s *server) close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}
