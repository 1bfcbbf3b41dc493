package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/img3d/api"
	"github.com/BaSui01/img3d/api/handlers"
	"github.com/BaSui01/img3d/auth"
	"github.com/BaSui01/img3d/config"
	"github.com/BaSui01/img3d/internal/cache"
	"github.com/BaSui01/img3d/internal/database"
	"github.com/BaSui01/img3d/internal/metrics"
	"github.com/BaSui01/img3d/internal/server"
	"github.com/BaSui01/img3d/internal/telemetry"
	"github.com/BaSui01/img3d/threed"
	"github.com/BaSui01/img3d/tracker"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 img3d 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 依赖
	db        *database.PoolManager
	cache     *cache.Manager
	registry  *tracker.Registry
	authSvc   *auth.Service
	telemetry *telemetry.Providers

	// Handlers
	healthHandler     *handlers.HealthHandler
	proxyHandler      *handlers.ProxyHandler
	conversionHandler *handlers.ConversionHandler
	authHandler       *handlers.AuthHandler
	galleryHandler    *handlers.GalleryHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCtx    context.Context
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器并初始化全部依赖，不监听端口
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) (*Server, error) {
	return newServer(cfg, logger, otelProviders, metrics.NewCollector("img3d", logger))
}

func newServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers, collector *metrics.Collector) (*Server, error) {
	s := &Server{
		cfg:              cfg,
		logger:           logger,
		telemetry:        otelProviders,
		metricsCollector: collector,
	}
	s.rateLimiterCtx, s.rateLimiterCancel = context.WithCancel(context.Background())

	if err := s.initStorage(); err != nil {
		s.Shutdown()
		return nil, err
	}
	if err := s.initAuth(); err != nil {
		s.Shutdown()
		return nil, err
	}
	s.initConversion()
	s.initHandlers()
	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStorage 打开用户库与可选的 Redis 快照缓存
func (s *Server) initStorage() error {
	db, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetStatsRecorder(s.metricsCollector)
	s.db = db

	if s.cfg.Database.AutoMigrate {
		if err := auth.NewGormRepository(db.DB()).AutoMigrate(); err != nil {
			return fmt.Errorf("database auto-migrate failed: %w", err)
		}
	}

	if !s.cfg.Redis.Enabled {
		return nil
	}
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = s.cfg.Redis.Addr
	cacheCfg.Password = s.cfg.Redis.Password
	cacheCfg.DB = s.cfg.Redis.DB
	cacheCfg.KeyPrefix = s.cfg.Redis.KeyPrefix
	cacheCfg.DefaultTTL = s.cfg.Redis.TaskTTL
	if s.cfg.Redis.PoolSize > 0 {
		cacheCfg.PoolSize = s.cfg.Redis.PoolSize
	}
	cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns

	m, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		// 缓存只是优化，不可用时直接访问上游
		s.logger.Warn("Redis not available, task snapshot cache disabled", zap.Error(err))
		return nil
	}
	s.cache = m
	return nil
}

func (s *Server) initAuth() error {
	svc, err := auth.NewService(auth.NewGormRepository(s.db.DB()), s.cfg.Auth, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init auth service: %w", err)
	}
	if err := svc.SeedAdmin(context.Background(), s.cfg.Auth); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	s.authSvc = svc
	return nil
}

func (s *Server) initConversion() {
	provider := threed.NewMeshyProvider(meshyConfig(s.cfg.Meshy), s.logger)
	if s.cfg.Meshy.APIKey == "" {
		s.logger.Warn("meshy.api_key is empty, upstream calls will be rejected")
	}

	opts := trackerOptions(s.cfg.Tracker, s.logger, s.metricsCollector)
	s.registry = tracker.NewRegistry(provider, opts, s.cfg.Tracker.IdleTTL)
	s.registry.StartSweeper(s.cfg.Tracker.SweepInterval)

	var taskCache handlers.TaskCache
	if s.cache != nil {
		taskCache = cache.NewTaskStore(s.cache, s.cfg.Redis.TaskTTL, s.metricsCollector)
	}
	// data URL 编码后约为原图的 4/3
	maxBody := s.cfg.Server.MaxUploadBytes/3*4 + 64<<10
	s.proxyHandler = handlers.NewProxyHandler(provider, taskCache, s.metricsCollector, maxBody, s.logger)
	s.conversionHandler = handlers.NewConversionHandler(s.registry, s.cfg.Server.MaxUploadBytes,
		websocketOrigins(s.cfg.Server.CORSAllowedOrigins), s.logger)
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.SetVersion(Version)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.db.Ping))
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	var google handlers.OAuthProvider
	if g := auth.NewGoogleProvider(s.cfg.Auth); g != nil {
		google = g
	}
	s.authHandler = handlers.NewAuthHandler(s.authSvc, google, s.metricsCollector, s.logger)
	s.galleryHandler = handlers.NewGalleryHandler(nil)
}

// routes 注册全部路由并套上中间件链
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// 健康检查与版本
	mux.HandleFunc("GET "+api.PathHealth, s.healthHandler.HandleHealth)
	mux.HandleFunc("GET "+api.PathHealthz, s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET "+api.PathReady, s.healthHandler.HandleReady)
	mux.HandleFunc("GET "+api.PathReadyz, s.healthHandler.HandleReady)
	mux.HandleFunc("GET "+api.PathVersion, s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 兼容前端的代理路由
	mux.HandleFunc("POST "+api.PathConvert, s.proxyHandler.HandleConvert)
	mux.HandleFunc("GET "+api.PathCheckStatus+"{taskId}", s.proxyHandler.HandleCheckStatus)

	// 认证
	mux.HandleFunc("POST "+api.PathRegister, s.authHandler.HandleRegister)
	mux.HandleFunc("POST "+api.PathLogin, s.authHandler.HandleLogin)
	mux.HandleFunc("GET "+api.PathMe, s.authHandler.HandleMe)
	mux.HandleFunc("GET "+api.PathGoogleLogin, s.authHandler.HandleGoogleLogin)
	mux.HandleFunc("GET "+api.PathGoogleCallback, s.authHandler.HandleGoogleCallback)

	// 转换
	mux.HandleFunc("POST "+api.PathConversions, s.conversionHandler.HandleStart)
	mux.HandleFunc("GET "+api.PathCurrentConversion, s.conversionHandler.HandleCurrent)
	mux.HandleFunc("DELETE "+api.PathCurrentConversion, s.conversionHandler.HandleCancel)
	mux.HandleFunc("GET "+api.PathConversionEvents, s.conversionHandler.HandleEvents)
	mux.HandleFunc("GET "+api.PathConversionWS, s.conversionHandler.HandleWebSocket)
	mux.HandleFunc("GET "+api.PathGallery, s.galleryHandler.HandleList)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(s.rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.authSvc, api.PublicPaths, s.logger),
	)
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动 HTTP 与 Metrics 服务器（非阻塞）
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("redis_cache", s.cache != nil),
		zap.Bool("google_sign_in", s.cfg.Auth.GoogleEnabled()),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(s.routes(), serverConfig, s.logger)
	s.httpManager.OnShutdown(s.conversionHandler.CloseStreams)

	if s.cfg.Server.TLSCertFile != "" {
		return s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	}
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(api.PathMetrics, promhttp.Handler())

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号或 HTTP 服务异常退出，然后优雅关闭
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var errCh <-chan error
	if s.httpManager != nil {
		errCh = s.httpManager.Errors()
	}

	select {
	case sig := <-quit:
		s.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			s.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	s.Shutdown()
}

// Shutdown 按依赖顺序关闭：转换循环 → HTTP → Metrics → 缓存 → 数据库 → 遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	var errs []error
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tracker registry: %w", err))
		}
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Graceful shutdown finished with errors", zap.Error(err))
		return
	}
	s.logger.Info("Graceful shutdown completed")
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

// websocketOrigins 把 CORS 来源转换为 WebSocket 的 host 匹配模式
func websocketOrigins(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		patterns = append(patterns, o)
	}
	return patterns
}
