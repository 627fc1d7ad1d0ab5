// Package fixtures 提供测试用的图片样本。
package fixtures

// PNG 是最小的 PNG 文件头，足以被 http.DetectContentType 识别。
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// JPEG 是 JPEG SOI 标记开头的样本。
var JPEG = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")

// GIF 是 GIF89a 文件头。
var GIF = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00")

// Chunk 把 data 按 size 字节切分。
func Chunk(data []byte, size int) [][]byte {
	if size <= 0 {
		size = 1
	}
	var out [][]byte
	for len(data) > 0 {
		n := min(size, len(data))
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}
