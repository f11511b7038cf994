package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/Akashpatel2609/PrepWise/core"
	"github.com/Akashpatel2609/PrepWise/processors"
	"github.com/Akashpatel2609/PrepWise/storage"
)

// MonitoringHandlers 监控相关的HTTP处理器
type MonitoringHandlers struct {
	registry    *core.SessionRegistry
	transcriber processors.Transcriber
	classifier  processors.WindowClassifier
	archive     storage.SessionArchive
	index       storage.AnswerIndex
}

// NewMonitoringHandlers 创建监控处理器实例
func NewMonitoringHandlers(registry *core.SessionRegistry, transcriber processors.Transcriber, classifier processors.WindowClassifier, archive storage.SessionArchive, index storage.AnswerIndex) *MonitoringHandlers {
	return &MonitoringHandlers{
		registry:    registry,
		transcriber: transcriber,
		classifier:  classifier,
		archive:     archive,
		index:       index,
	}
}

// HealthCheckHandler 健康检查处理器
func (h *MonitoringHandlers) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"services": map[string]string{
			"registry":    "active",
			"transcriber": "active",
			"classifier":  "active",
			"archive":     "active",
			"index":       "active",
		},
	}

	// 任一协作方缺席只降级不报错
	if h.registry == nil {
		health["services"].(map[string]string)["registry"] = "inactive"
		health["status"] = "degraded"
	}
	if h.transcriber == nil {
		health["services"].(map[string]string)["transcriber"] = "inactive"
		health["status"] = "degraded"
	}
	if h.classifier == nil {
		health["services"].(map[string]string)["classifier"] = "inactive"
		health["status"] = "degraded"
	}
	if h.archive == nil {
		health["services"].(map[string]string)["archive"] = "inactive"
		health["status"] = "degraded"
	}
	if h.index == nil {
		health["services"].(map[string]string)["index"] = "inactive"
		health["status"] = "degraded"
	}

	core.WriteJSON(w, http.StatusOK, health)
}

// StatsHandler 统计信息处理器
func (h *MonitoringHandlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := map[string]interface{}{
		"memory": map[string]interface{}{
			"alloc":        m.Alloc,
			"total_alloc":  m.TotalAlloc,
			"sys":          m.Sys,
			"num_gc":       m.NumGC,
			"heap_objects": m.HeapObjects,
		},
		"runtime": map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"cpu_count":  runtime.NumCPU(),
			"go_version": runtime.Version(),
		},
		"uptime_seconds": time.Since(startTime).Seconds(),
		"timestamp":      time.Now().Unix(),
	}

	if h.registry != nil {
		stats["sessions"] = map[string]interface{}{
			"active": h.registry.Len(),
		}
	}

	core.WriteJSON(w, http.StatusOK, stats)
}

// 启动时间记录
var startTime = time.Now()
