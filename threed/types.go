package threed

import (
	"context"
	"strings"
)

// Status 转换任务状态，取值与上游 API 保持一致
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
)

// ParseStatus 归一化上游状态。EXPIRED / CANCELED 视为失败，空值视为排队中，
// 其他未知值视为进行中。
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return StatusPending
	case "PENDING", "QUEUED":
		return StatusPending
	case "IN_PROGRESS", "RUNNING":
		return StatusInProgress
	case "SUCCEEDED", "SUCCESS":
		return StatusSucceeded
	case "FAILED", "EXPIRED", "CANCELED", "CANCELLED":
		return StatusFailed
	default:
		return StatusInProgress
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ModelURLs maps output formats to download URLs.
type ModelURLs struct {
	GLB  string `json:"glb,omitempty"`
	FBX  string `json:"fbx,omitempty"`
	OBJ  string `json:"obj,omitempty"`
	USDZ string `json:"usdz,omitempty"`
}

// Format returns the URL for format, falling back to GLB.
func (m *ModelURLs) Format(format string) string {
	if m == nil {
		return ""
	}
	switch strings.ToLower(format) {
	case "fbx":
		return m.FBX
	case "obj":
		return m.OBJ
	case "usdz":
		return m.USDZ
	default:
		return m.GLB
	}
}

// TextureURLs 一组 PBR 贴图
type TextureURLs struct {
	BaseColor string `json:"base_color,omitempty"`
	Metallic  string `json:"metallic,omitempty"`
	Normal    string `json:"normal,omitempty"`
	Roughness string `json:"roughness,omitempty"`
}

// ConversionTask 一次转换任务的快照。轮询结果整体替换，不做字段级合并。
type ConversionTask struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	Progress     int           `json:"progress"`
	ModelURLs    *ModelURLs    `json:"model_urls,omitempty"`
	ThumbnailURL string        `json:"thumbnail_url,omitempty"`
	TextureURLs  []TextureURLs `json:"texture_urls,omitempty"`
}

// NewPendingTask 提交成功后的初始快照
func NewPendingTask(id string) *ConversionTask {
	return &ConversionTask{ID: id, Status: StatusPending}
}

// Clone returns a deep copy so snapshots handed to callers stay read-only.
func (t *ConversionTask) Clone() *ConversionTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.ModelURLs != nil {
		urls := *t.ModelURLs
		c.ModelURLs = &urls
	}
	if t.TextureURLs != nil {
		c.TextureURLs = append([]TextureURLs(nil), t.TextureURLs...)
	}
	return &c
}

// ClampProgress 将进度限制在 [0,100]
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Gateway 提交与查询接口，tracker 通过它访问上游
type Gateway interface {
	// Submit 提交 data URL 编码的图像，返回任务 ID
	Submit(ctx context.Context, imageDataURL string) (string, error)
	// Status 查询任务当前快照
	Status(ctx context.Context, taskID string) (*ConversionTask, error)
}
