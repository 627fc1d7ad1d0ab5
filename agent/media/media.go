// Package media encodes raw image bytes into inline content parts.
package media

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/visionflow/types"
)

// FallbackMimeType is used when the payload cannot be identified as an image.
const FallbackMimeType = "image/png"

// supportedImageTypes lists the image MIME types DetectContentType can report.
var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// SniffImageType inspects the leading bytes and returns the image MIME type.
// Anything that is not a recognised image format reports FallbackMimeType.
func SniffImageType(data []byte) string {
	if len(data) == 0 {
		return FallbackMimeType
	}
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if supportedImageTypes[ct] {
		return ct
	}
	return FallbackMimeType
}

// DataURI renders data as a base64 data URI with the given MIME type.
func DataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// Encoder turns raw bytes into an image content part.
type Encoder struct {
	// FixedMimeType forces every payload to carry this tag instead of the
	// sniffed one. Empty means sniff.
	FixedMimeType string
}

// Encode builds the inline image content for data.
func (e Encoder) Encode(data []byte) types.ImageContent {
	mimeType := e.FixedMimeType
	if mimeType == "" {
		mimeType = SniffImageType(data)
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	return types.ImageContent{
		URL:      "data:" + mimeType + ";base64," + b64,
		MimeType: mimeType,
		Data:     b64,
	}
}

// DecodeDataURI splits a base64 data URI back into MIME type and bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data uri")
	}
	mimeType, isB64 := strings.CutSuffix(meta, ";base64")
	if !isB64 {
		return "", nil, fmt.Errorf("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri: %w", err)
	}
	return mimeType, data, nil
}
