package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/img3d/threed"
	"github.com/BaSui01/img3d/tracker"
	"github.com/BaSui01/img3d/types"
)

const (
	// 订阅通道缓冲，慢消费者只会丢弃中间状态
	streamBuffer = 8
	// SSE 保活间隔
	heartbeatInterval = 15 * time.Second
	// 单条 WebSocket 消息的写超时
	wsWriteTimeout = 10 * time.Second
)

// TrackerRegistry 按用户提供 tracker
type TrackerRegistry interface {
	Get(userID string) (*tracker.Tracker, error)
	Lookup(userID string) (*tracker.Tracker, bool)
}

// ConvertRequest POST /api/v1/conversions 的 JSON 请求体
type ConvertRequest struct {
	ImageData string `json:"imageData"`
}

// =============================================================================
// 🧊 转换 Handler
// =============================================================================

// ConversionHandler 暴露调用者自己的 tracker：启动、查询、取消与状态流
type ConversionHandler struct {
	registry       TrackerRegistry
	maxUpload      int64
	originPatterns []string
	logger         *zap.Logger

	// 服务关闭时结束所有状态流
	done      chan struct{}
	closeOnce sync.Once
}

// NewConversionHandler 创建转换处理器。maxUpload 为原始图像的字节上限，
// originPatterns 为 WebSocket 允许的跨域来源。
func NewConversionHandler(registry TrackerRegistry, maxUpload int64, originPatterns []string, logger *zap.Logger) *ConversionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversionHandler{
		registry:       registry,
		maxUpload:      maxUpload,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("handler", "conversion")),
		done:           make(chan struct{}),
	}
}

// CloseStreams 结束所有 SSE 与 WebSocket 连接，供服务关闭时调用
func (h *ConversionHandler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.done) })
}

// HandleStart 处理 POST /api/v1/conversions
// 支持 multipart 字段 image 或 JSON {imageData}，返回 202 与当前状态。
func (h *ConversionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	payload, apiErr := h.readImage(w, r)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	tr, err := h.registry.Get(userID)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}

	handle, err := tr.ConvertImage(r.Context(), payload)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}

	h.logger.Info("conversion started",
		zap.String("user_id", userID),
		zap.Uint64("generation", handle.Generation()))
	WriteJSON(w, http.StatusAccepted, Response{
		Success:   true,
		Data:      tr.State(),
		Timestamp: time.Now(),
	})
}

// HandleCurrent 处理 GET /api/v1/conversions/current
func (h *ConversionHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	tr, found := h.registry.Lookup(userID)
	if !found {
		WriteSuccess(w, tracker.State{})
		return
	}
	WriteSuccess(w, tr.State())
}

// HandleCancel 处理 DELETE /api/v1/conversions/current
func (h *ConversionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	tr, found := h.registry.Lookup(userID)
	if !found {
		WriteSuccess(w, tracker.State{})
		return
	}
	tr.Cancel()
	h.logger.Info("conversion cancelled", zap.String("user_id", userID))
	WriteSuccess(w, tr.State())
}

// =============================================================================
// 📡 状态流
// =============================================================================

// HandleEvents 处理 GET /api/v1/conversions/current/events（SSE）。
// 每次状态变化推送一条 state 事件，推送终态后结束。
func (h *ConversionHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	tr, err := h.registry.Get(userID)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// 长连接不受服务端写超时限制
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("failed to clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := tr.Subscribe(streamBuffer)
	defer unsubscribe()
	var cursor streamCursor

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case state, open := <-ch:
			if !open {
				return
			}
			if err := writeSSE(w, "state", state); err != nil {
				h.logger.Debug("sse write failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			if cursor.finished(state) {
				return
			}
		}
	}
}

// HandleWebSocket 处理 GET /api/v1/conversions/current/ws。
// 每次状态变化发送一条 JSON 消息，推送终态后以正常关闭码结束。
func (h *ConversionHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	tr, err := h.registry.Get(userID)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端只接收消息；CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(context.WithoutCancel(r.Context()))

	ch, unsubscribe := tr.Subscribe(streamBuffer)
	defer unsubscribe()
	var cursor streamCursor

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case state, open := <-ch:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "tracker closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, state)
			cancel()
			if err != nil {
				h.logger.Debug("websocket write failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
			if cursor.finished(state) {
				_ = conn.Close(websocket.StatusNormalClosure, "conversion finished")
				return
			}
		}
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// streamCursor 决定状态流何时结束。连接时已是终态的快照属于上一次转换，
// 照常推送但不结束流；之后出现更新代数的终态才结束。
type streamCursor struct {
	started  bool
	staleGen uint64
}

func (c *streamCursor) finished(s tracker.State) bool {
	if !c.started {
		c.started = true
		if s.Terminal() {
			c.staleGen = s.Generation
			return false
		}
	}
	return s.Terminal() && s.Generation > c.staleGen
}

func (h *ConversionHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, *types.Error) {
	limit := h.maxUpload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if limit > 0 {
			// 预留 multipart 边界与表单头的空间
			r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			if isTooLarge(err) {
				return nil, tooLargeError(limit)
			}
			return nil, types.NewInvalidRequestError("multipart field \"image\" is required").WithCause(err)
		}
		defer file.Close()
		if limit > 0 && header.Size > limit {
			return nil, tooLargeError(limit)
		}
		payload, err := io.ReadAll(file)
		if err != nil {
			return nil, types.NewInvalidRequestError("failed to read image").WithCause(err)
		}
		return payload, nil
	}

	if limit > 0 {
		// base64 膨胀约 4/3
		r.Body = http.MaxBytesReader(w, r.Body, limit/3*4+64<<10)
	}
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isTooLarge(err) {
			return nil, tooLargeError(limit)
		}
		return nil, types.NewInvalidRequestError("invalid JSON body").WithCause(err)
	}
	payload, err := threed.DecodeImageData(req.ImageData)
	if err != nil {
		if e, ok := types.AsError(err); ok {
			return nil, e
		}
		return nil, types.NewInvalidRequestError(err.Error())
	}
	if limit > 0 && int64(len(payload)) > limit {
		return nil, tooLargeError(limit)
	}
	return payload, nil
}

func (h *ConversionHandler) writeTrackerError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracker.ErrClosed) {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "service is shutting down").
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithCause(err), h.logger)
		return
	}
	if e, ok := types.AsError(err); ok {
		WriteError(w, e, h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, "conversion failed to start").WithCause(err), h.logger)
}

// requireUser 读取认证中间件写入的用户 ID
func requireUser(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	userID, ok := types.UserID(r.Context())
	if !ok || userID == "" {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "authentication required", logger)
		return "", false
	}
	return userID, true
}

func writeSSE(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func tooLargeError(limit int64) *types.Error {
	return types.NewError(types.ErrPayloadTooLarge, fmt.Sprintf("image exceeds %d bytes", limit)).
		WithHTTPStatus(http.StatusRequestEntityTooLarge)
}
