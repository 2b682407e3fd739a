package router

import (
	"time"

	"peer-chat-app/backend/internal/api"
	"peer-chat-app/backend/internal/ws"
	"peer-chat-app/backend/pkg/config"
	"peer-chat-app/backend/pkg/di"
	"peer-chat-app/backend/pkg/errors"
	"peer-chat-app/backend/pkg/health"
	"peer-chat-app/backend/pkg/logger"
	"peer-chat-app/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Hub       *ws.Hub
	Config    *config.Config
	Checker   *health.Checker
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)

	cfg := config.New()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger middleware first so every request carries a request-scoped logger
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rateLimiter := middleware.NewRateLimiter(container.Logger)
	engine.Use(rateLimiter.Middleware())

	// Health checker watches the stores backing history and presence
	checker := health.NewChecker(container.Logger, 30*time.Second)
	if container.DB != nil {
		checker.RegisterDatabaseCheck(func() error {
			sqlDB, err := container.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		})
	}
	if container.Redis != nil {
		checker.RegisterRedisCheck(container.Redis.Ping)
	}
	checker.Start()

	go container.Hub.Run()

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Hub:       container.Hub,
		Config:    cfg,
		Checker:   checker,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(corsMiddleware())

	jwtAuth := middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger)

	authHandler := api.NewAuthHandler(r.Container.UserService, r.Logger)
	userHandler := api.NewUserHandler(r.Container.UserService, r.Container.Presence, r.Logger)
	messageHandler := api.NewMessageHandler(r.Container.History, r.Config.Features.MaxMessagesPerConversation, r.Logger)
	healthHandler := api.NewHealthHandler(r.Checker, r.Container.Registry)

	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Engine.Group("/api/v1")

	// Public routes (no auth required)
	publicRoutes := v1.Group("/")
	{
		publicRoutes.GET("/health", healthHandler.Liveness)
		publicRoutes.GET("/health/ready", healthHandler.Readiness)

		authRoutes := publicRoutes.Group("/auth")
		{
			authRoutes.POST("/signup", authHandler.Signup)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.GET("/me", jwtAuth, authHandler.Me)
		}
	}

	// Protected routes (require authentication)
	protectedRoutes := v1.Group("/")
	protectedRoutes.Use(jwtAuth)
	{
		protectedRoutes.GET("/users", userHandler.ListUsers)
		protectedRoutes.GET("/users/:id", userHandler.GetUser)
		protectedRoutes.GET("/conversations/:peerId/messages", messageHandler.GetConversation)
	}

	// Legacy routes kept for older clients. These will eventually be phased out.
	legacyAuth := r.Engine.Group("/api/auth")
	{
		legacyAuth.POST("/signup", authHandler.Signup)
		legacyAuth.POST("/login", authHandler.Login)
		legacyAuth.GET("/me", jwtAuth, authHandler.Me)
	}
	r.Engine.GET("/api/users/:id", jwtAuth, userHandler.GetUser)

	// WebSocket route; the token travels as a query parameter because
	// browsers cannot set headers on the upgrade request
	r.Engine.GET("/ws", ws.ServeWs(r.Hub, r.Container.JWTService))
}

// Enhance CORS middleware to explicitly allow WebSocket-specific headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Upgrade, Connection, Cache-Control")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
