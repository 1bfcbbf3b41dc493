package threed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/img3d/api"
	"github.com/BaSui01/img3d/internal/tlsutil"
	"github.com/BaSui01/img3d/types"
)

// HTTPGateway 通过本服务的代理接口提交与查询任务
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPGateway 创建指向 baseURL（如 http://localhost:8080）的网关，token 为可选的 JWT.
func NewHTTPGateway(baseURL, token string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  tlsutil.SecureHTTPClient(timeout),
	}
}

// SubmitRequest /api/convert-to-3d 请求体
type SubmitRequest struct {
	ImageData string `json:"imageData"`
}

// SubmitResponse /api/convert-to-3d 响应体
type SubmitResponse struct {
	Result string `json:"result"`
}

// ProxyError 代理接口的错误响应体
type ProxyError struct {
	Error string `json:"error"`
}

// Submit 实现 Gateway
func (g *HTTPGateway) Submit(ctx context.Context, imageDataURL string) (string, error) {
	payload, err := json.Marshal(SubmitRequest{ImageData: imageDataURL})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	var out SubmitResponse
	if err := g.do(ctx, http.MethodPost, api.PathConvert, payload, &out); err != nil {
		return "", err
	}
	if out.Result == "" {
		return "", types.NewError(types.ErrUpstreamError, "response missing job id").WithProvider("img3d")
	}
	return out.Result, nil
}

// Status 实现 Gateway
func (g *HTTPGateway) Status(ctx context.Context, taskID string) (*ConversionTask, error) {
	var task ConversionTask
	if err := g.do(ctx, http.MethodGet, api.PathCheckStatus+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	task.Status = ParseStatus(string(task.Status))
	task.Progress = ClampProgress(task.Progress)
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.NewError(types.ErrUpstreamError, "request failed").
			WithProvider("img3d").
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var pe ProxyError
		if json.Unmarshal(raw, &pe) == nil && pe.Error != "" {
			msg = pe.Error
		}
		return types.NewUpstreamError("img3d", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrUpstreamError, "failed to decode response").
			WithProvider("img3d").
			WithCause(err)
	}
	return nil
}
