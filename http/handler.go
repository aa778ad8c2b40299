package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/stephnangue/edgegate/clock"
	"github.com/stephnangue/edgegate/config"
	"github.com/stephnangue/edgegate/core"
	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/metrics"
)

// HandlerProperties contains configuration for the HTTP handler
type HandlerProperties struct {
	Core   *core.Core
	Logger logger.Logger

	// CORS is the cross-origin policy; nil disables CORS handling.
	CORS *config.CORSBlock

	// TrustForwardedFor takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustForwardedFor bool
}

// gateway carries the dependencies shared by the pipeline stages, the
// proxy and the gateway's own endpoints.
type gateway struct {
	core    *core.Core
	logger  logger.Logger
	clock   clock.Clock
	metrics *metrics.Registry
	proxy   *proxy
}

// Handler creates the edge pipeline:
// CORS, rate limiting, authentication, identity injection, then either a
// gateway endpoint or the reverse proxy.
func Handler(props *HandlerProperties) http.Handler {
	g := newGateway(props)

	local := chi.NewRouter()
	local.Post("/guest/session", g.handleGuestSession)
	local.Post("/guest/token/refresh", g.handleGuestRefresh)
	local.Post("/guest/token/validate", g.handleGuestValidate)
	local.Get("/guest/session/info", g.handleGuestInfo)
	local.Post("/gateway/token/revoke", g.handleTokenRevoke)
	local.Get("/gateway/metrics", g.handleMetrics)

	// Everything else belongs to a downstream service.
	local.NotFound(g.proxy.ServeHTTP)
	local.MethodNotAllowed(g.proxy.ServeHTTP)

	var handler http.Handler = g.pipeline(local)
	if props.CORS != nil && props.CORS.IsEnabled() {
		handler = cors.Handler(corsOptions(props.CORS))(handler)
	}
	if props.TrustForwardedFor {
		handler = middleware.RealIP(handler)
	}
	return handler
}

func newGateway(props *HandlerProperties) *gateway {
	log := props.Logger
	if log == nil {
		log = props.Core.Logger()
	}
	g := &gateway{
		core:    props.Core,
		logger:  log.WithSubsystem("http"),
		clock:   props.Core.Clock(),
		metrics: props.Core.Metrics(),
	}
	g.proxy = newProxy(g)
	return g
}

func corsOptions(c *config.CORSBlock) cors.Options {
	return cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}
