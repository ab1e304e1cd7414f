package utils

import (
	"mime"
	"path"
)

// DetermineMimeType 基于扩展名提取文件类型
func DetermineMimeType(filename string) string {
	ext := path.Ext(filename)
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
