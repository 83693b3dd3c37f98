package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/expass/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// MetricsHandler records HTTP metrics and serves the registry.
type MetricsHandler interface {
	Middleware() gin.HandlerFunc
	Handler() gin.HandlerFunc
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	rateLimiter   *middleware.RateLimiter
	metrics       MetricsHandler
	healthH       Handler
	authH         Handler
	policyH       Handler
	userH         Handler
	protectedRole string
}

type Config struct {
	// ProtectedRole is required on every admin route.
	ProtectedRole string
	Mode          string
}

type Handlers struct {
	Health Handler
	Auth   Handler
	Policy Handler
	User   Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
	metrics MetricsHandler,
	handlers Handlers,
	config Config,
) *Router {
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	gin.SetMode(config.Mode)

	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		rateLimiter:   rateLimiter,
		metrics:       metrics,
		healthH:       handlers.Health,
		authH:         handlers.Auth,
		policyH:       handlers.Policy,
		userH:         handlers.User,
		protectedRole: config.ProtectedRole,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		metrics.Middleware(),
		middleware.ErrorHandler(),
		middleware.Validation(),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.healthH.RegisterRoutes(api)
	api.GET("/health/metrics", r.metrics.Handler())

	// Public routes
	public := api.Group("")
	public.Use(r.rateLimiter.RateLimit())
	r.authH.RegisterRoutes(public)

	// Admin routes
	admin := api.Group("")
	admin.Use(
		r.auth.Authenticate(),
		r.auth.RequireRole(r.protectedRole),
	)
	r.policyH.RegisterRoutes(admin)
	r.userH.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
