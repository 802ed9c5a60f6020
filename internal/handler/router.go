package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crm-dashboard/internal/middleware"
	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/security"
	ws "crm-dashboard/internal/websocket"
)

// RouterConfig carries everything the dashboard server routes to
type RouterConfig struct {
	Sessions       *Sessions
	Hub            *ws.Hub
	Upstream       Upstream
	Gatekeeper     middleware.GatekeeperConfig
	CSRF           *security.TokenManager
	AllowedOrigins []string
	LoginLimiter   *middleware.RateLimiter
	// OpenAPI validates the /api surface; nil skips validation
	OpenAPI  func(http.Handler) http.Handler
	PagesDir string
}

// NewRouter assembles the middleware chain and routes
func NewRouter(cfg RouterConfig) http.Handler {
	var (
		publisher DealEventPublisher
		counter   SubscriberCounter
	)
	if cfg.Hub != nil {
		publisher, counter = cfg.Hub, cfg.Hub
	}

	auth := NewAuthHandler(cfg.Sessions)
	deals := NewDealsHandler(cfg.Sessions, publisher)
	profile := NewProfileHandler(cfg.Sessions)
	pages := NewPages(cfg.PagesDir)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Metrics())
	r.Use(middleware.Gatekeeper(cfg.Gatekeeper))
	r.Use(middleware.CSRF(cfg.CSRF))

	r.Get("/health", Health)
	r.Get("/health/ready", Ready(cfg.Upstream, counter, ws.DealsTopic))
	r.Handle("/metrics", promhttp.Handler())

	// "/" never reaches here: the gatekeeper redirects it
	r.Get("/", pages.Serve("login.html"))
	r.Get("/auth/login", pages.Serve("login.html"))
	r.Get("/auth/register", pages.Serve("register.html"))
	r.Get("/dashboard", pages.Serve("dashboard.html"))
	r.Get("/dashboard/profile", pages.Serve("profile.html"))
	r.Get("/dashboard/*", pages.Serve("dashboard.html"))
	r.Get("/profile", pages.Serve("profile.html"))
	r.Get("/admin", pages.Serve("admin.html"))
	r.Handle("/static/*", pages.Assets())

	r.Route("/api", func(r chi.Router) {
		if cfg.OpenAPI != nil {
			r.Use(cfg.OpenAPI)
		}

		r.Group(func(r chi.Router) {
			if cfg.LoginLimiter != nil {
				r.Use(cfg.LoginLimiter.Middleware())
			}
			r.Post("/auth/login", auth.Login)
			r.Post("/auth/register", auth.Register)
		})
		r.Post("/auth/logout", auth.Logout)
		r.Post("/auth/refresh", auth.Refresh)
		r.Get("/auth/session", auth.Session)

		r.Get("/deals", deals.List)
		r.Post("/deals", deals.Create)
		r.Get("/deals/{id}", deals.Get)
		r.Put("/deals/{id}", deals.Update)
		r.Delete("/deals/{id}", deals.Delete)
		r.Post("/deals/{id}/repeat", deals.Repeat)

		r.Get("/users/profile", profile.Get)
		r.Patch("/users/profile", profile.Update)
	})

	if cfg.Hub != nil {
		r.Get("/ws/deals", NewWebSocketHandler(cfg.Hub, cfg.AllowedOrigins).Deals)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})

	return r
}

// requestContext makes chi's request id visible to the logger and the
// outbound X-Request-Id header
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chimiddleware.GetReqID(ctx); id != "" {
			ctx = observability.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
