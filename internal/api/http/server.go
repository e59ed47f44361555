// Package http 运行时 HTTP 接口
//
// 路由一览：
//
//	GET    /healthz
//	GET    /metrics
//	GET    /v1/capabilities
//	GET    /v1/metrics-definitions
//	GET    /v1/presets
//	GET    /v1/environments
//	POST   /v1/environments
//	GET    /v1/environments/:id
//	DELETE /v1/environments/:id
//	GET    /v1/environments/:id/executions
//	POST   /v1/environments/:id/executions
//	GET    /v1/executions/:id
//	GET    /v1/executions/:id/report
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weisyn/chainruntime/internal/api/http/handlers"
	"github.com/weisyn/chainruntime/internal/api/http/middleware"
	apiconfig "github.com/weisyn/chainruntime/internal/config/api"
	corelog "github.com/weisyn/chainruntime/internal/core/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
)

// ServerParams 创建服务器所需的依赖
type ServerParams struct {
	Options    *apiconfig.APIOptions
	Logger     log.Logger
	Runtime    handlers.RuntimeService
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server HTTP服务器
type Server struct {
	router  *gin.Engine
	options *apiconfig.APIOptions
	logger  log.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer 创建服务器并注册全部路由
func NewServer(params ServerParams) *Server {
	options := params.Options
	if options == nil {
		options = apiconfig.New(nil)
	}
	logger := params.Logger
	if logger == nil {
		logger = corelog.NewNop()
	}
	logger = logger.With("module", "api")
	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	switch options.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(options.GinMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.NewLogger(logger).Middleware(),
		middleware.NewMetrics(params.Registerer, logger.GetZapLogger()).Middleware(),
		middleware.ErrorHandler(logger.GetZapLogger()),
	)

	s := &Server{router: router, options: options, logger: logger}
	s.setupRoutes(params.Runtime, gatherer)
	return s
}

// setupRoutes 注册路由
func (s *Server) setupRoutes(runtime handlers.RuntimeService, gatherer prometheus.Gatherer) {
	handlers.NewHealthHandler(runtime).RegisterRoutes(s.router)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/v1")
	handlers.NewRuntimeHandler(runtime).RegisterRoutes(v1)
	handlers.NewReportHandler(runtime).RegisterRoutes(v1)
	handlers.NewPresetHandler().RegisterRoutes(v1)

	s.logger.Debugf("http routes registered: %d", len(s.router.Routes()))
}

// Handler 返回路由处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr 返回实际监听地址；未启动时为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Start 监听配置的地址并在后台提供服务
//
// 端口为 0 时由系统分配，实际地址通过 Addr 获取。
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("http server already started")
	}

	addr := net.JoinHostPort(s.options.Host, fmt.Sprint(s.options.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
	}
	s.addr = listener.Addr()

	srv := s.httpServer
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("http server stopped: %v", err)
		}
	}()

	s.logger.Infof("http server listening on %s", s.addr)
	return nil
}

// Stop 优雅关闭服务器
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.addr = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("http server shutting down")
	return srv.Shutdown(ctx)
}
