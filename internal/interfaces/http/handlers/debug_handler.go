package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/bizclaw/bizclaw/internal/domain/safety"
	"github.com/bizclaw/bizclaw/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DebugHandler 调试 API 处理器 — 暴露进程指标与安全包络计数
type DebugHandler struct {
	monitor  *monitoring.Monitor
	envelope *safety.Envelope
	logger   *zap.Logger
}

// NewDebugHandler 创建调试处理器
func NewDebugHandler(monitor *monitoring.Monitor, envelope *safety.Envelope, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		monitor:  monitor,
		envelope: envelope,
		logger:   logger,
	}
}

// GetMetrics 获取性能指标
// GET /api/v1/debug/metrics
func (h *DebugHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.GetStats())
}

// GetHistory 获取指标历史快照
// GET /api/v1/debug/history
func (h *DebugHandler) GetHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"snapshots": h.monitor.GetHistory()})
}

// GetSafety 获取安全包络计数 (注入扫描 / 循环检测)
// GET /api/v1/debug/safety
func (h *DebugHandler) GetSafety(c *gin.Context) {
	if h.envelope == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled":              true,
		"injection_scans":      h.envelope.Injection.Scans(),
		"injection_detections": h.envelope.Injection.Detections(),
		"loops_detected":       h.envelope.Loops.LoopsDetected(),
	})
}

// GetRuntime 获取 Go 运行时信息
// GET /api/v1/debug/runtime
func (h *DebugHandler) GetRuntime(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.JSON(http.StatusOK, gin.H{
		"goroutines":  runtime.NumGoroutine(),
		"alloc_bytes": m.Alloc,
		"sys_bytes":   m.Sys,
		"gc_cycles":   m.NumGC,
		"time":        time.Now().Unix(),
	})
}
