package routes

import (
	"log/slog"
	"time"

	_ "messenger-service/internal/api/docs"
	"messenger-service/internal/api/handlers"
	"messenger-service/internal/api/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies collects what the HTTP surface needs. Uploader and Limiter may be nil.
type Dependencies struct {
	Accounts       handlers.AccountService
	Tokens         middleware.TokenAuthenticator
	History        handlers.HistoryReader
	Presence       handlers.PresenceReader
	Stats          handlers.HubStats
	WS             *handlers.WSHandler
	Uploader       handlers.Uploader
	Limiter        middleware.RateLimiter
	AllowedOrigins []string
	AuthLimit      int64
	WSLimit        int64
	Logger         *slog.Logger
}

type Router struct {
	engine        *gin.Engine
	deps          Dependencies
	authHandler   *handlers.AuthHandler
	msgHandler    *handlers.MessageHandler
	userHandler   *handlers.UserHandler
	uploadHandler *handlers.UploadHandler
	healthHandler *handlers.HealthHandler
	rateLimitMW   *middleware.RateLimitMiddleware
	authMW        *middleware.AuthMiddleware
}

func NewRouter(deps Dependencies) *Router {
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi(deps.Logger))

	return &Router{
		engine:        engine,
		deps:          deps,
		authHandler:   handlers.NewAuthHandler(deps.Accounts, deps.Logger),
		msgHandler:    handlers.NewMessageHandler(deps.History, deps.Logger),
		userHandler:   handlers.NewUserHandler(deps.Presence),
		uploadHandler: handlers.NewUploadHandler(deps.Uploader, deps.Logger),
		healthHandler: handlers.NewHealthHandler(deps.Stats),
		rateLimitMW:   middleware.NewRateLimitMiddleware(deps.Limiter, deps.Logger),
		authMW:        middleware.NewAuthMiddleware(deps.Tokens),
	}
}

func (r *Router) SetupRoutes() {
	// Swagger documentation
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.engine.GET("/", r.healthHandler.Root)
	r.engine.GET("/health", r.healthHandler.Health)

	// Public routes
	authLimit := r.rateLimitMW.RateLimitIP(r.deps.AuthLimit, time.Minute)
	r.engine.POST("/register", authLimit, r.authHandler.Register)
	r.engine.POST("/login", authLimit, r.authHandler.Login)
	r.engine.GET("/messages", r.msgHandler.GetMessages)
	r.engine.GET("/users", r.userHandler.GetUsers)

	if r.deps.WS != nil {
		r.engine.GET("/ws",
			r.authMW.RequireWSAuth(),
			r.rateLimitMW.WebSocketRateLimit(r.deps.WSLimit, time.Minute),
			r.deps.WS.HandleWebSocket,
		)
	}

	// Authenticated routes
	api := r.engine.Group("/api/v1")
	api.Use(r.authMW.RequireAuth())
	{
		api.POST("/attachments", r.uploadHandler.Upload)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
