package handlers

import "net/http"

// GalleryItem 示例模型
type GalleryItem struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ModelURL     string `json:"modelUrl"`
	CreatedAt    string `json:"createdAt"`
}

// DefaultGallery 内置的示例模型
var DefaultGallery = []GalleryItem{
	{ID: 1, Title: "Sample Model 1", ThumbnailURL: "/placeholder.jpg", ModelURL: "/sample-model-1.glb", CreatedAt: "2024-03-20"},
	{ID: 2, Title: "Sample Model 2", ThumbnailURL: "/placeholder.jpg", ModelURL: "/sample-model-2.glb", CreatedAt: "2024-03-19"},
}

// GalleryHandler 返回示例模型列表
type GalleryHandler struct {
	items []GalleryItem
}

// NewGalleryHandler items 为 nil 时使用 DefaultGallery
func NewGalleryHandler(items []GalleryItem) *GalleryHandler {
	if items == nil {
		items = DefaultGallery
	}
	return &GalleryHandler{items: items}
}

// HandleList 处理 GET /api/v1/gallery
func (h *GalleryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.items)
}
