package webdav

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// bodyStream 按Content-Encoding解码请求体, 并附带读空闲超时:
// 超时触发后关闭底层body, 后续读取统一返回errBodyTimeout
type bodyStream struct {
	rc       io.Reader
	raw      io.Closer
	closer   io.Closer
	timer    *time.Timer
	idle     time.Duration
	timedOut atomic.Bool
}

func (h *webdavHandler) newBodyStream(r *http.Request) (*bodyStream, error) {
	enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
	bs := &bodyStream{
		raw:  r.Body,
		idle: h.c.requestTimeout,
	}
	switch enc {
	case "", "identity":
		bs.rc = r.Body
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream failed, err:%w", err)
		}
		bs.rc = zr
		bs.closer = zr
	case "deflate":
		zr, err := zlib.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("open deflate stream failed, err:%w", err)
		}
		bs.rc = zr
		bs.closer = zr
	case "br":
		bs.rc = brotli.NewReader(r.Body)
	default:
		return nil, errBadEncoding
	}
	if bs.idle > 0 {
		bs.timer = time.AfterFunc(bs.idle, func() {
			bs.timedOut.Store(true)
			_ = r.Body.Close()
		})
	}
	return bs, nil
}

func (b *bodyStream) Read(p []byte) (int, error) {
	if b.timedOut.Load() {
		return 0, errBodyTimeout
	}
	n, err := b.rc.Read(p)
	if b.timer != nil {
		b.timer.Reset(b.idle)
	}
	if err != nil && err != io.EOF && b.timedOut.Load() {
		return n, errBodyTimeout
	}
	return n, err
}

func (b *bodyStream) Close() error {
	if b.timer != nil {
		b.timer.Stop()
	}
	if b.closer != nil {
		_ = b.closer.Close()
	}
	return b.raw.Close()
}
