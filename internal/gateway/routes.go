package gateway

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/af-corp/copilot-relay/internal/config"
	"github.com/af-corp/copilot-relay/internal/httputil"
	"github.com/af-corp/copilot-relay/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions carries the optional pieces of the HTTP stack.
type RouterOptions struct {
	// Limiter enables per-client rate limiting on the relay routes.
	Limiter ratelimit.Checker
	// Gatherer backs GET /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter wires the relay routes, CORS and middleware onto a chi router.
// CORS origins are read from cfg on every request so reloads take effect.
func NewRouter(h *Handler, cfg func() *config.Config, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.AccessLog(logger))
	r.Use(httputil.Recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(cfg().CORS.AllowedOrigins, origin)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.Health)
	r.Get("/api/hello", h.Hello)
	r.Get("/openapi.json", h.OpenAPI)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(ratelimit.Middleware(opts.Limiter, cfg().RateLimit.RequestsPerMinute, h.metrics))
		}
		r.Post("/generate", h.Generate)
		r.Post("/explain", h.Explain)
		r.Post("/debug", h.Debug)
	})

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.CreateConversation)
		r.Get("/{id}", h.GetConversation)
		r.Get("/{id}/messages", h.ListMessages)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, httputil.RequestIDFrom(r.Context()), "Not found")
	})

	return r
}

func originAllowed(allowed []string, origin string) bool {
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}
