package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/metrics"
)

// Handler is implemented by every /api/v1 resource handler.
type Handler interface {
	RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware)
}

// RootHandler mounts outside /api/v1, for probes and the websocket.
type RootHandler interface {
	RegisterRoutes(r gin.IRouter)
}

type Config struct {
	Mode           string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	RateLimit      middleware.RateLimiterConfig
	CORS           middleware.CORSConfig
	Security       middleware.SecurityConfig
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	limiter *middleware.RateLimiter
	config  Config
}

func NewRouter(config Config, auth *middleware.AuthMiddleware, log *logger.Logger, m *metrics.Metrics) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = middleware.DefaultMaxBodySize
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.ErrorHandler(log),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORS),
		middleware.Metrics(m),
	)
	engine.NoRoute(func(c *gin.Context) {
		httputil.RespondWithError(c, errors.NotFound("route", nil))
	})

	return &Router{
		engine:  engine,
		auth:    auth,
		limiter: middleware.NewRateLimiter(config.RateLimit),
		config:  config,
	}
}

// Setup mounts root handlers as they are and api handlers under /api/v1
// behind rate limiting, body size and request deadline. The websocket is
// rate limited but must not inherit the request deadline.
func (r *Router) Setup(root []RootHandler, api ...Handler) {
	for _, h := range root {
		h.RegisterRoutes(r.engine.Group("", r.limiter.RateLimit()))
	}

	v1 := r.engine.Group("/api/v1",
		r.limiter.RateLimit(),
		middleware.SizeLimit(r.config.MaxBodyBytes),
		middleware.Timeout(r.config.RequestTimeout),
	)
	for _, h := range api {
		h.RegisterRoutes(v1, r.auth)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
