package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/img3d/internal/cache"
	"github.com/BaSui01/img3d/threed"
	"github.com/BaSui01/img3d/types"
)

// 代理接口沿用前端约定的错误文案与 {"error": "..."} 响应体
const (
	msgNoImageData       = "No image data provided"
	msgConvertFailed     = "Failed to convert image to 3D"
	msgCheckStatusFailed = "Failed to check conversion status"
)

// TaskCache 终态任务快照缓存
type TaskCache interface {
	Get(ctx context.Context, id string) (*threed.ConversionTask, error)
	Put(ctx context.Context, task *threed.ConversionTask) error
}

// UpstreamRecorder 记录代理接口对上游的调用结果
type UpstreamRecorder interface {
	RecordUpstreamProxy(operation string, status int)
}

// =============================================================================
// 🔁 上游代理 Handler
// =============================================================================

// ProxyHandler 将提交与状态查询转发到上游转换服务
type ProxyHandler struct {
	gw       threed.Gateway
	cache    TaskCache
	recorder UpstreamRecorder
	maxBody  int64
	group    singleflight.Group
	logger   *zap.Logger
}

// NewProxyHandler 创建代理处理器。taskCache 与 recorder 可为 nil。
// maxBody 限制请求体大小（data URL 编码后的图像）。
func NewProxyHandler(gw threed.Gateway, taskCache TaskCache, recorder UpstreamRecorder, maxBody int64, logger *zap.Logger) *ProxyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyHandler{
		gw:       gw,
		cache:    taskCache,
		recorder: recorder,
		maxBody:  maxBody,
		logger:   logger.With(zap.String("handler", "proxy")),
	}
}

// HandleConvert 处理 POST /api/convert-to-3d
func (h *ProxyHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req threed.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProxyError(w, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		writeProxyError(w, http.StatusBadRequest, msgNoImageData)
		return
	}
	if strings.TrimSpace(req.ImageData) == "" {
		writeProxyError(w, http.StatusBadRequest, msgNoImageData)
		return
	}

	jobID, err := h.gw.Submit(r.Context(), req.ImageData)
	h.record("submit", err)
	if err != nil {
		h.logger.Error("error converting image to 3D", zap.Error(err))
		writeProxyError(w, http.StatusInternalServerError, msgConvertFailed)
		return
	}

	WriteJSON(w, http.StatusOK, threed.SubmitResponse{Result: jobID})
}

// HandleCheckStatus 处理 GET /api/check-status/{taskId}
func (h *ProxyHandler) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(r.PathValue("taskId"))
	if taskID == "" {
		writeProxyError(w, http.StatusBadRequest, "Task id is required")
		return
	}

	if task := h.cached(r.Context(), taskID); task != nil {
		WriteJSON(w, http.StatusOK, task)
		return
	}

	// 同一任务的并发查询共享一次上游调用
	v, err, shared := h.group.Do(taskID, func() (any, error) {
		task, err := h.gw.Status(context.WithoutCancel(r.Context()), taskID)
		h.record("status", err)
		if err != nil {
			return nil, err
		}
		if h.cache != nil {
			if err := h.cache.Put(context.WithoutCancel(r.Context()), task); err != nil {
				h.logger.Warn("failed to cache task snapshot", zap.String("task_id", taskID), zap.Error(err))
			}
		}
		return task, nil
	})
	if err != nil {
		h.logger.Error("error checking status",
			zap.String("task_id", taskID),
			zap.Bool("shared", shared),
			zap.Error(err))
		writeProxyError(w, http.StatusInternalServerError, msgCheckStatusFailed)
		return
	}

	WriteJSON(w, http.StatusOK, v.(*threed.ConversionTask))
}

func (h *ProxyHandler) cached(ctx context.Context, taskID string) *threed.ConversionTask {
	if h.cache == nil {
		return nil
	}
	task, err := h.cache.Get(ctx, taskID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("task cache unavailable", zap.String("task_id", taskID), zap.Error(err))
		}
		return nil
	}
	return task
}

func (h *ProxyHandler) record(operation string, err error) {
	if h.recorder == nil {
		return
	}
	status := http.StatusOK
	if err != nil {
		status = 0
		if e, ok := types.AsError(err); ok {
			status = e.HTTPStatus
		}
	}
	h.recorder.RecordUpstreamProxy(operation, status)
}

func writeProxyError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, threed.ProxyError{Error: message})
}
