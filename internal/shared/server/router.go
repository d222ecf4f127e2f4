package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/shared/config"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/server/middleware"
	"assessment-backend/internal/shared/server/respond"
)

// Registrar attaches a domain's routes to the authenticated /api/v1 group.
type Registrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Options configures NewRouter.
type Options struct {
	Config   config.Config
	Verifier middleware.TokenVerifier
	// Ping reports backing store health for /health. Nil means always healthy.
	Ping     func(ctx context.Context) error
	Handlers []Registrar
}

const (
	rateGroupMutation = "MUTATION"
	rateGroupPolling  = "POLLING"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(opts Options) *gin.Engine {
	if opts.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(opts.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())
	r.GET("/api/v1/health", healthHandler(opts.Ping))

	perMinute := float64(opts.Config.RateLimitRPM) / 60.0
	api := r.Group("/api/v1")
	api.Use(
		middleware.Auth(opts.Verifier, opts.Config.DevIdentity),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: rateGroupFor,
			Rules: map[string]middleware.RateLimitRule{
				rateGroupMutation: {Rate: perMinute, Burst: opts.Config.RateLimitBurst},
				rateGroupPolling:  {Rate: perMinute * 10, Burst: opts.Config.RateLimitBurst * 5},
			},
		}),
	)
	registerMeRoutes(api)
	for _, h := range opts.Handlers {
		h.RegisterRoutes(api)
	}
	return r
}

// rateGroupFor limits the endpoints that fan out into export work, plus status
// polling at a looser budget. Everything else is unlimited.
func rateGroupFor(c *gin.Context) string {
	route := c.FullPath()
	switch {
	case c.Request.Method == http.MethodPost && (strings.HasSuffix(route, "/accept") || strings.HasSuffix(route, "/exports")):
		return rateGroupMutation
	case c.Request.Method == http.MethodGet && strings.HasPrefix(route, "/api/v1/exports/"):
		return rateGroupPolling
	default:
		return "NONE"
	}
}

func healthHandler(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				respond.Error(c, http.StatusServiceUnavailable, "unavailable", "database unreachable", nil)
				return
			}
		}
		respond.OK(c, gin.H{"ok": true})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
