package utils

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// WeakEtag 基于路径+大小+修改时间计算弱etag
func WeakEtag(url string, size int64, mtime int64) string {
	h := xxhash.New()
	_, _ = h.WriteString(url)
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(size))
	binary.BigEndian.PutUint64(buf[8:], uint64(mtime))
	_, _ = h.Write(buf)
	sum := make([]byte, 8)
	binary.BigEndian.PutUint64(sum, h.Sum64())
	return fmt.Sprintf("W/\"%s\"", hex.EncodeToString(sum))
}
