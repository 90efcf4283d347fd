package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fedmail/backend/internal/auth"
	jwtpkg "fedmail/backend/internal/auth/jwt"
	"fedmail/backend/internal/config"
	"fedmail/backend/internal/discovery"
	"fedmail/backend/internal/health"
	"fedmail/backend/internal/logger"
	"fedmail/backend/internal/monitoring"
	"fedmail/backend/internal/peer"
	"fedmail/backend/internal/pool"
	"fedmail/backend/internal/service"
	"fedmail/backend/internal/smtp"
	"fedmail/backend/internal/storage/memory"
	httptransport "fedmail/backend/internal/transport/http"
	"fedmail/backend/internal/websocket"
)

// main 启动同时包含 HTTP API 与 SMTP 投递前端的域服务器。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting fedmail domain server",
		zap.String("domain", cfg.Relay.Domain),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	store := memory.NewStore(cfg.Relay.Domain)

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化健康检查
	healthChecker := health.NewHealthChecker(store, log)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 对端发现：静态对端表或共享 Redis 注册表
	var resolver discovery.Resolver
	var registry *discovery.RedisRegistry
	switch cfg.Discovery.Mode {
	case "redis":
		registry = discovery.NewRedisRegistry(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Relay.Domain,
			cfg.Discovery.SelfEndpoint,
			log,
		)
		healthChecker.AddRegistryCheck(registry)
		resolver = registry
		log.Info("using redis peer registry",
			zap.String("address", cfg.Redis.Address),
			zap.String("self_endpoint", cfg.Discovery.SelfEndpoint),
		)
	default:
		resolver = discovery.NewStaticResolver(cfg.Discovery.Peers)
		log.Info("using static peer table", zap.Int("peers", len(cfg.Discovery.Peers)))
	}

	cachedResolver := discovery.NewCachedResolver(resolver, cfg.Discovery.CacheTTL)

	// 转发协程池与对端客户端
	forwardPool := pool.NewWorkerPool(cfg.Relay.ForwardWorkers, cfg.Relay.ForwardQueue, log)
	forwardPool.Start(groupCtx)

	peerClient := peer.NewClient(cfg.Relay.PeerTimeout, cfg.Relay.Token, cfg.Relay.PeerRate)
	forwarder := service.NewPeerForwarder(cachedResolver, peerClient, forwardPool, cfg.Relay.PeerTimeout, log)
	forwarder.SetMetrics(metrics)

	// 传播引擎
	relayService := service.NewRelayService(store, forwarder, cfg.Relay.Domain, log)
	relayService.SetMetrics(metrics)

	// 认证服务
	authService := auth.NewService(store, relayService, cfg.Relay.Domain)
	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry)

	// WebSocket Hub：向在线用户推送新邮件通知
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)
	relayService.SetNotifier(wsHub)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:       cfg,
		RelayService: relayService,
		AuthService:  authService,
		JWTManager:   jwtManager,
		Metrics:      metrics,
		Health:       healthChecker,
		WebSocketHub: wsHub,
		Logger:       log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建 SMTP 投递前端
	smtpLimiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConns, cfg.SMTP.MaxRate)
	smtpBackend := smtp.NewBackend(relayService, authService, smtpLimiter, log)
	smtpServer := gosmtp.NewServer(smtpBackend)
	smtpServer.Addr = cfg.SMTP.BindAddr
	smtpServer.Domain = cfg.SMTP.Domain
	smtpServer.AllowInsecureAuth = true // 传输加密不在本服务范围内，由部署层面的网络隔离保证
	smtpServer.ReadTimeout = 10 * time.Second
	smtpServer.WriteTimeout = 10 * time.Second
	smtpServer.MaxMessageBytes = 10 * 1024 * 1024 // 10MB
	smtpServer.MaxRecipients = 50

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 注册表心跳 goroutine（redis 模式）
	if registry != nil {
		group.Go(func() error {
			log.Info("starting registry heartbeat", zap.Duration("interval", 30*time.Second))
			registry.RunHeartbeat(groupCtx, 30*time.Second)
			return nil
		})
	}

	// 解析缓存清理 goroutine
	group.Go(func() error {
		cachedResolver.RunCleanup(groupCtx, time.Minute)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		// 等待在途的转发任务收尾
		forwardPool.Stop()

		if registry != nil {
			if err := registry.Close(); err != nil {
				log.Warn("registry close warning", zap.Error(err))
			}
		}
		if err := store.Close(); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
