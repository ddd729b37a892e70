package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bizclaw/bizclaw/internal/application/usecase"
	"github.com/bizclaw/bizclaw/internal/domain/safety"
	"github.com/bizclaw/bizclaw/internal/domain/service"
	"github.com/bizclaw/bizclaw/internal/infrastructure/monitoring"
	"github.com/bizclaw/bizclaw/internal/infrastructure/prompt"
	"github.com/bizclaw/bizclaw/internal/interfaces/http/handlers"
	"github.com/bizclaw/bizclaw/internal/interfaces/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// Deps aggregates the gateway HTTP surface's collaborators, following the
// tool layer's single-configuration-point convention. Monitor and EventHub
// are optional — nil simply leaves /metrics and /ws unmounted.
type Deps struct {
	UseCase      *usecase.ProcessMessageUseCase
	AgentLoop    *service.AgentLoop
	ToolExec     service.ToolExecutor
	PromptEngine *prompt.PromptEngine
	Monitor      *monitoring.Monitor
	Envelope     *safety.Envelope
	WSHandler    *websocket.Handler
	Logger       *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger

	// 设置Gin模式
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	// 初始化处理器
	messageHandler := handlers.NewMessageHandler(deps.UseCase, logger)
	openaiHandler := handlers.NewOpenAIHandler(deps.UseCase, logger, nil)
	var agentHandler *handlers.AgentHandler
	if deps.AgentLoop != nil {
		agentHandler = handlers.NewAgentHandler(deps.AgentLoop, deps.ToolExec, deps.PromptEngine, logger)
	}

	// 注册路由
	setupRoutes(router, messageHandler, openaiHandler, agentHandler, deps)

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func setupRoutes(router *gin.Engine, messageHandler *handlers.MessageHandler, openaiHandler *handlers.OpenAIHandler, agentHandler *handlers.AgentHandler, deps Deps) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Prometheus 指标
	if deps.Monitor != nil {
		router.GET("/metrics", gin.WrapH(deps.Monitor.PrometheusHandler()))
	}

	// 实时事件推送 (调度器通知 / trace 广播)
	if deps.WSHandler != nil {
		router.GET("/ws", func(c *gin.Context) {
			deps.WSHandler.ServeWS(c.Writer, c.Request)
		})
	}

	// API版本1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"message": "pong",
			})
		})

		v1.POST("/messages", messageHandler.SendMessage)

		// Agent Loop endpoints (SSE streaming)
		if agentHandler != nil {
			v1.POST("/agent", agentHandler.RunAgent)
			v1.GET("/agent/tools", agentHandler.GetTools)
		}

		// Debug endpoints (metrics, safety counters, runtime)
		if deps.Monitor != nil {
			debugHandler := handlers.NewDebugHandler(deps.Monitor, deps.Envelope, deps.Logger)
			dbg := v1.Group("/debug")
			dbg.GET("/metrics", debugHandler.GetMetrics)
			dbg.GET("/history", debugHandler.GetHistory)
			dbg.GET("/safety", debugHandler.GetSafety)
			dbg.GET("/runtime", debugHandler.GetRuntime)
		}
	}

	// OpenAI-compatible API
	oai := router.Group("/v1")
	{
		oai.POST("/chat/completions", openaiHandler.ChatCompletions)
		oai.GET("/models", openaiHandler.ListModels)
	}
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
