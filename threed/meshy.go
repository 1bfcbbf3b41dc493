package threed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/img3d/internal/tlsutil"
	"github.com/BaSui01/img3d/types"
)

const instrumentationName = "github.com/BaSui01/img3d/threed"

// maxErrorBody 上游错误响应体最多读取的字节数
const maxErrorBody = 4 << 10

// MeshyProvider 使用 Meshy API 执行图像转 3D.
type MeshyProvider struct {
	cfg    MeshyConfig
	client *http.Client
	tracer trace.Tracer
	logger *zap.Logger
}

// NewMeshyProvider 创建新的 Meshy 提供者.
func NewMeshyProvider(cfg MeshyConfig, logger *zap.Logger) *MeshyProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMeshyConfig().BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultMeshyConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeshyProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		tracer: otel.Tracer(instrumentationName),
		logger: logger.With(zap.String("component", "meshy")),
	}
}

func (p *MeshyProvider) Name() string { return "meshy" }

type meshyImageTo3DRequest struct {
	ImageURL      string `json:"image_url"`
	EnablePBR     bool   `json:"enable_pbr"`
	ShouldRemesh  bool   `json:"should_remesh"`
	ShouldTexture bool   `json:"should_texture"`
}

type meshySubmitResponse struct {
	Result string `json:"result"`
	TaskID string `json:"task_id,omitempty"`
	ID     string `json:"id,omitempty"`
}

type meshyTaskResponse struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Progress     int           `json:"progress"`
	ModelURLs    *ModelURLs    `json:"model_urls,omitempty"`
	ThumbnailURL string        `json:"thumbnail_url,omitempty"`
	TextureURLs  []TextureURLs `json:"texture_urls,omitempty"`
	TaskError    *struct {
		Message string `json:"message"`
	} `json:"task_error,omitempty"`
}

func (r *meshyTaskResponse) toTask(fallbackID string) *ConversionTask {
	id := r.ID
	if id == "" {
		id = fallbackID
	}
	return &ConversionTask{
		ID:           id,
		Status:       ParseStatus(r.Status),
		Progress:     ClampProgress(r.Progress),
		ModelURLs:    r.ModelURLs,
		ThumbnailURL: r.ThumbnailURL,
		TextureURLs:  r.TextureURLs,
	}
}

// =============================================================================
// 🎯 Gateway 实现
// =============================================================================

// Submit 创建 image-to-3d 任务并返回任务 ID.
func (p *MeshyProvider) Submit(ctx context.Context, imageDataURL string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "meshy.submit", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body := meshyImageTo3DRequest{
		ImageURL:      imageDataURL,
		EnablePBR:     p.cfg.EnablePBR,
		ShouldRemesh:  p.cfg.ShouldRemesh,
		ShouldTexture: p.cfg.ShouldTexture,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	var mResp meshySubmitResponse
	if err := p.do(ctx, http.MethodPost, p.endpoint("image-to-3d"), payload, &mResp); err != nil {
		recordSpanError(span, err)
		return "", err
	}

	taskID := mResp.Result
	if taskID == "" {
		taskID = mResp.TaskID
	}
	if taskID == "" {
		taskID = mResp.ID
	}
	if taskID == "" {
		err := types.NewError(types.ErrUpstreamError, "meshy response missing task id").WithProvider(p.Name())
		recordSpanError(span, err)
		return "", err
	}

	span.SetAttributes(attribute.String("meshy.task_id", taskID))
	p.logger.Debug("task submitted", zap.String("task_id", taskID))
	return taskID, nil
}

// Status 查询任务快照.
func (p *MeshyProvider) Status(ctx context.Context, taskID string) (*ConversionTask, error) {
	ctx, span := p.tracer.Start(ctx, "meshy.status",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("meshy.task_id", taskID)),
	)
	defer span.End()

	if taskID == "" {
		return nil, types.NewInvalidRequestError("task id is required")
	}

	var mResp meshyTaskResponse
	if err := p.do(ctx, http.MethodGet, p.endpoint("image-to-3d", url.PathEscape(taskID)), nil, &mResp); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	task := mResp.toTask(taskID)
	if task.Status == StatusFailed && mResp.TaskError != nil && mResp.TaskError.Message != "" {
		p.logger.Info("upstream task failed",
			zap.String("task_id", task.ID),
			zap.String("reason", mResp.TaskError.Message))
	}
	span.SetAttributes(
		attribute.String("meshy.status", string(task.Status)),
		attribute.Int("meshy.progress", task.Progress),
	)
	return task, nil
}

func (p *MeshyProvider) endpoint(parts ...string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + "/" + strings.Join(parts, "/")
}

// do 发送请求并解码 JSON 响应；非 2xx 转换为 *types.Error
func (p *MeshyProvider) do(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.NewError(types.ErrUpstreamError, "meshy request failed").
			WithProvider(p.Name()).
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	p.logger.Debug("meshy response",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return types.NewUpstreamError(p.Name(), resp.StatusCode,
			fmt.Sprintf("meshy error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(errBody))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrUpstreamError, "failed to decode meshy response").
			WithProvider(p.Name()).
			WithCause(err)
	}
	return nil
}

func recordSpanError(span trace.Span, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
