package threed

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/img3d/types"
)

// pngHeader 是一个最小的 PNG 签名，足以让内容嗅探识别为 image/png
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestEncodeImage_PNG(t *testing.T) {
	dataURL, err := EncodeImage(pngHeader)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, raw)
}

func TestEncodeImage_JPEG(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	dataURL, err := EncodeImage(jpeg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/jpeg;base64,"))
}

func TestEncodeImage_Rejects(t *testing.T) {
	_, err := EncodeImage(nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrEncodingFailed))

	_, err = EncodeImage([]byte("just some text, not an image"))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrEncodingFailed))
}

func TestDecodeImageData(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	raw, err := DecodeImageData("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, raw)

	raw, err = DecodeImageData(encoded)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, raw)

	_, err = DecodeImageData("")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = DecodeImageData("data:image/png,plain")
	assert.True(t, types.IsErrorCode(err, types.ErrEncodingFailed))

	_, err = DecodeImageData("!!!not-base64!!!")
	assert.True(t, types.IsErrorCode(err, types.ErrEncodingFailed))
}
