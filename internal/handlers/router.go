package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/greetings/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	api   RouteRegistrar
	pages RouteRegistrar

	pageMiddlewares []func(http.Handler) http.Handler

	mounts []mount
}

type mount struct {
	prefix  string
	handler http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the API, page and asset groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	for _, m := range cfg.mounts {
		r.Handle(m.prefix+"*", m.handler)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		if cfg.api != nil {
			cfg.api(api)
			return
		}
		registerNotImplemented(api, "api")
	})

	if cfg.pages != nil {
		r.Group(func(pages chi.Router) {
			for _, mw := range cfg.pageMiddlewares {
				if mw != nil {
					pages.Use(mw)
				}
			}
			cfg.pages(pages)
		})
	}

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithAPIRoutes configures the registrar responsible for JSON endpoints under the API prefix.
func WithAPIRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.api = reg
	}
}

// WithPageRoutes configures the registrar responsible for HTML pages and htmx fragments.
func WithPageRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.pages = reg
	}
}

// WithPageMiddlewares configures middlewares applied to the page group only.
func WithPageMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.pageMiddlewares = append(cfg.pageMiddlewares, mw...)
	}
}

// WithMount serves handler for every path below prefix, e.g. static assets or
// locally stored uploads.
func WithMount(prefix string, handler http.Handler) Option {
	return func(cfg *routerConfig) {
		if handler == nil {
			return
		}
		prefix = "/" + strings.Trim(prefix, "/") + "/"
		cfg.mounts = append(cfg.mounts, mount{prefix: prefix, handler: handler})
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
