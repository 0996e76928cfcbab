package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"
	"github.com/unrolled/secure"

	"github.com/hongminglow/cuecast-be/internal/accounts"
	"github.com/hongminglow/cuecast-be/internal/authz"
	"github.com/hongminglow/cuecast-be/internal/config"
	"github.com/hongminglow/cuecast-be/internal/http/handlers"
	"github.com/hongminglow/cuecast-be/internal/identity"
	"github.com/hongminglow/cuecast-be/internal/middleware"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/observability"
)

// authRateLimit caps credential endpoints per client IP per minute.
const authRateLimit = 10

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Config   config.Config
	Log      *logrus.Logger
	Identity *identity.Provider
	Accounts *accounts.Service
	Metrics  *observability.Metrics
	Health   map[string]handlers.Pinger
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(deps Deps) *Server {
	httpServer := &http.Server{
		Addr:              deps.Config.HTTPAddress(),
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      deps.Config.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// NewRouter builds the routed handler without binding a listener.
func NewRouter(deps Deps) http.Handler {
	timeout := deps.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perMinute := deps.Config.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 120
	}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.Logging(deps.Log),
		chimw.Recoverer,
		deps.Metrics.Middleware,
		middleware.CORS(deps.Config.CORSOrigins()),
		secureMiddleware.Handler,
		chimw.Timeout(timeout),
		httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	)

	authn := middleware.Authenticate(deps.Identity, deps.Log)

	handlers.NewHealthHandler(time.Now(), deps.Health).Register(r)

	authLimit := httprate.Limit(authRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint))
	handlers.NewAuthHandler(deps.Identity, deps.Log).Register(r, authn, authLimit)
	usersGate := middleware.Require(authz.RequirePermission(models.PermUserManagement), deps.Metrics)
	auditGate := middleware.Require(authz.RequirePermission(models.PermAuditAccess), deps.Metrics)
	handlers.NewUsersHandler(deps.Accounts).Register(r, authn, usersGate)
	handlers.NewAuditHandler(deps.Accounts).Register(r, authn, auditGate)
	handlers.NewPermissionsHandler().Register(r, authn)

	return r
}

// NewMetricsRouter serves GET /metrics. It is kept off the public router and
// bound to METRICS_ADDR.
func NewMetricsRouter(metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// NewMetricsServer returns the internal metrics listener, or nil when addr is
// empty.
func NewMetricsServer(addr string, metrics *observability.Metrics) *Server {
	if addr == "" {
		return nil
	}
	return &Server{inner: &http.Server{
		Addr:              addr,
		Handler:           NewMetricsRouter(metrics),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}}
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
