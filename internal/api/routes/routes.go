package routes

import (
	"time"

	"engagement-service/internal/api/handlers"
	"engagement-service/internal/api/middleware"
	"engagement-service/internal/config"
	"engagement-service/internal/repositories"
	"engagement-service/internal/services"
	"engagement-service/internal/websocket"
	"engagement-service/pkg/logger"

	_ "engagement-service/docs"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies are the collaborators the HTTP surface is built from.
// Limiter and Pingers are optional.
type Dependencies struct {
	Store     repositories.Store
	Hub       *websocket.Hub
	Scheduler *websocket.Scheduler
	Reports   *services.ReportService
	Limiter   middleware.RateLimiter
	Pingers   map[string]handlers.Pinger
	Logger    *logger.Logger
}

type Router struct {
	engine         *gin.Engine
	cfg            config.ServerConfig
	wsHandler      *handlers.WSHandler
	sessionHandler *handlers.SessionHandler
	alertHandler   *handlers.AlertHandler
	reportHandler  *handlers.ReportHandler
	healthHandler  *handlers.HealthHandler
	rateLimitMW    *middleware.RateLimitMiddleware
	authMW         *middleware.AuthMiddleware
	metrics        *websocket.ConnectionMetrics
}

func NewRouter(cfg config.ServerConfig, deps Dependencies) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Add middlewares
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(cfg.AllowedOrigins))
	engine.Use(middleware.LogApi(deps.Logger))

	var breaker handlers.BreakerState
	if b, ok := deps.Store.(handlers.BreakerState); ok {
		breaker = b
	}

	return &Router{
		engine:         engine,
		cfg:            cfg,
		wsHandler:      handlers.NewWSHandler(deps.Hub, websocket.NewUpgrader(cfg.AllowedOrigins)),
		sessionHandler: handlers.NewSessionHandler(deps.Store, deps.Hub.Registry(), deps.Scheduler),
		alertHandler:   handlers.NewAlertHandler(deps.Store),
		reportHandler:  handlers.NewReportHandler(deps.Reports),
		healthHandler:  handlers.NewHealthHandler(breaker, deps.Hub.Registry(), deps.Pingers),
		rateLimitMW:    middleware.NewRateLimitMiddleware(deps.Limiter, deps.Logger),
		authMW:         middleware.NewAuthMiddleware(cfg.JWTSecret),
		metrics:        deps.Hub.Metrics(),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", r.healthHandler.Check)
	r.engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// WebSocket endpoint; frames carry their own identity
	r.engine.GET("/ws", r.wsHandler.HandleWebSocket)

	api := r.engine.Group("/api/v1")
	api.Use(r.rateLimitMW.RateLimit(r.cfg.RateLimit, time.Minute))
	api.GET("/ws", r.wsHandler.HandleWebSocket)

	sessions := api.Group("/sessions")
	{
		sessions.GET("", r.sessionHandler.ListActive)
		sessions.GET("/:id", r.sessionHandler.Get)
		sessions.GET("/:id/users", r.sessionHandler.Users)
		sessions.GET("/:id/alerts", r.sessionHandler.Alerts)
		sessions.GET("/:id/engagement", r.sessionHandler.Engagement)
		sessions.GET("/:id/members", r.sessionHandler.Members)
	}

	// Mutating routes require a bearer token when a secret is configured
	protected := api.Group("")
	protected.Use(r.authMW.RequireAuth())
	{
		protected.POST("/sessions", r.sessionHandler.Create)
		protected.POST("/sessions/:id/end", r.sessionHandler.End)
		protected.POST("/sessions/:id/report", r.reportHandler.Export)
		protected.POST("/alerts/:id/resolve", r.alertHandler.Resolve)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
