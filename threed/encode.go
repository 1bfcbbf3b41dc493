package threed

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/img3d/types"
)

// SupportedImageTypes 允许提交的图像 MIME 类型
var SupportedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// DetectImageType sniffs the payload and returns its MIME type if supported.
func DetectImageType(payload []byte) (string, bool) {
	mime := http.DetectContentType(payload)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	_, ok := SupportedImageTypes[mime]
	return mime, ok
}

// EncodeImage 将原始图像字节编码为 data URL。
// 空负载或非图像内容返回 ENCODING_FAILED 错误。
func EncodeImage(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", types.NewError(types.ErrEncodingFailed, "image payload is empty").
			WithHTTPStatus(http.StatusBadRequest)
	}
	mime, ok := DetectImageType(payload)
	if !ok {
		return "", types.NewError(types.ErrEncodingFailed, fmt.Sprintf("unsupported image type %q", mime)).
			WithHTTPStatus(http.StatusUnsupportedMediaType)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeImageData 解析 data URL 或裸 base64 字符串，返回原始字节。
func DecodeImageData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, types.NewInvalidRequestError("image data is empty")
	}
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return nil, types.NewError(types.ErrEncodingFailed, "malformed data URL").
				WithHTTPStatus(http.StatusBadRequest)
		}
		s = s[comma+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, types.NewError(types.ErrEncodingFailed, "invalid base64 image data").
			WithHTTPStatus(http.StatusBadRequest).
			WithCause(err)
	}
	return raw, nil
}
