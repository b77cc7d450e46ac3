package main

import (
	"rentline-api/internal/handler"
	"rentline-api/internal/middleware"
	"rentline-api/internal/push"
	"rentline-api/internal/service"
	"rentline-api/pkg/config"
	"rentline-api/pkg/database"
	"rentline-api/pkg/jwtutil"
	"rentline-api/pkg/logger"
	"rentline-api/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting rentline API...", cfg.LogConfig()...)

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Build the service graph: each service takes its collaborators as
	// constructor parameters, no ambient globals
	tokens := jwtutil.NewTokenService(cfg.JWT.SigningKey, cfg.JWT.TokenTTL, nil)
	transport := push.NewTransport(cfg.Push, log)

	users := service.NewUserService(db, log)
	auth := service.NewAuthService(users, tokens, log)
	notifications := service.NewNotificationService(db, transport, log)
	chats := service.NewChatService(db, users, cfg.Chat, log)
	messages := service.NewMessageService(db, chats, notifications, cfg.Chat, log, nil)

	authHandler := handler.NewAuthHandler(auth)
	chatHandler := handler.NewChatHandler(chats, messages, users)
	notificationHandler := handler.NewNotificationHandler(notifications, users)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())
	// Bound every request by the pool acquire timeout so saturation surfaces
	// as a retryable failure instead of a hang
	e.Use(echomiddleware.ContextTimeout(cfg.DB.AcquireTimeout))

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	authGroup := e.Group("/auth")
	authGroup.POST("/signup", authHandler.Signup)
	authGroup.POST("/login", authHandler.Login)
	authGroup.PUT("/logout", authHandler.Logout)

	// API routes - all require a resolved identity
	api := e.Group("", middleware.Auth(auth))
	api.GET("/auth/whoami", authHandler.Whoami)

	chatsGroup := api.Group("/chats")
	chatsGroup.GET("", chatHandler.GetChats)
	chatsGroup.POST("", chatHandler.CreateChat)
	chatsGroup.GET("/:chat_id", chatHandler.GetChat)
	chatsGroup.POST("/:chat_id/messages", chatHandler.CreateMessage)
	chatsGroup.GET("/:chat_id/messages", chatHandler.GetMessages)
	chatsGroup.GET("/:chat_id/messages/:message_id", chatHandler.GetMessage)
	chatsGroup.PUT("/:chat_id/messages/:message_id/read", chatHandler.MarkRead)

	notificationsGroup := api.Group("/notifications")
	notificationsGroup.PUT("/subscribe", notificationHandler.Subscribe)
	notificationsGroup.DELETE("/unsubscribe", notificationHandler.Unsubscribe)
	notificationsGroup.POST("/say-hello", notificationHandler.SayHello)

	// Start server
	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
