package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fedmail/backend/internal/auth"
	jwtpkg "fedmail/backend/internal/auth/jwt"
	"fedmail/backend/internal/config"
	"fedmail/backend/internal/health"
	"fedmail/backend/internal/middleware"
	"fedmail/backend/internal/monitoring"
	"fedmail/backend/internal/service"
	"fedmail/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config       *config.Config
	RelayService *service.RelayService
	AuthService  *auth.Service
	JWTManager   *jwtpkg.Manager
	Metrics      *monitoring.Metrics
	Health       *health.HealthChecker
	WebSocketHub *websocket.Hub
	Logger       *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(10 * 1024 * 1024))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.JWTManager, deps.Logger)
	messageHandler := NewMessageHandler(deps.RelayService, deps.AuthService, deps.Logger)
	peerHandler := NewPeerHandler(deps.RelayService, deps.Logger)

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)

	// 健康检查与指标
	if deps.Health != nil {
		router.GET("/live", gin.WrapF(deps.Health.LiveEndpoint()))
		router.GET("/ready", gin.WrapF(deps.Health.ReadyEndpoint()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// 对外 API
	v1 := router.Group("/api/v1")
	{
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		messageRoutes := v1.Group("/messages")
		messageRoutes.Use(jwtAuth.RequireAuth())
		{
			messageRoutes.POST("", messageHandler.PostMessage)
			messageRoutes.GET("", messageHandler.ListMessages)
			messageRoutes.GET("/:id", messageHandler.GetMessage)
			messageRoutes.DELETE("/:id", messageHandler.DeleteMessage)
		}

		inboxRoutes := v1.Group("/inbox")
		inboxRoutes.Use(jwtAuth.RequireAuth())
		{
			inboxRoutes.GET("", messageHandler.ListMessages)
			inboxRoutes.DELETE("/:id", messageHandler.RemoveFromInbox)
		}

		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	// 域间内部 API：只允许持有共享令牌的对端引擎调用
	internal := router.Group("/internal/v1")
	internal.Use(middleware.RelayAuth(deps.Config.Relay.Token, deps.Logger))
	{
		internal.POST("/messages", peerHandler.InboundMessage)
		internal.DELETE("/messages/:id", peerHandler.InboundDelete)
	}

	return router
}
