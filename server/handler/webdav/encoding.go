package webdav

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/xxxsen/davgate/proxyutil"
)

const encodingIdentity = "identity"

var supportedEncodings = []string{"gzip", "x-gzip", "deflate", "br", encodingIdentity}

var errNoAcceptableEncoding = errors.New("webdav: no acceptable content encoding")

func isSupportedEncoding(name string) bool {
	for _, item := range supportedEncodings {
		if item == name {
			return true
		}
	}
	return false
}

type acceptItem struct {
	name string
	q    float64
}

func parseAcceptEncoding(hdr string) []acceptItem {
	var rs []acceptItem
	for _, part := range strings.Split(hdr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		q := 1.0
		if idx := strings.IndexByte(part, ';'); idx >= 0 {
			name = strings.TrimSpace(part[:idx])
			for _, param := range strings.Split(part[idx+1:], ";") {
				param = strings.TrimSpace(param)
				if !strings.HasPrefix(param, "q=") {
					continue
				}
				if v, err := strconv.ParseFloat(strings.TrimPrefix(param, "q="), 64); err == nil {
					q = v
				}
			}
		}
		rs = append(rs, acceptItem{name: strings.ToLower(name), q: q})
	}
	return rs
}

// chooseEncoding 按q值协商编码. '*'代表任一未显式列出的支持编码, 缺省回退gzip
func chooseEncoding(hdr string) (string, error) {
	if strings.TrimSpace(hdr) == "" {
		return encodingIdentity, nil
	}
	items := parseAcceptEncoding(hdr)
	listed := make(map[string]float64, len(items))
	star := -1.0
	for _, item := range items {
		if item.name == "*" {
			star = item.q
			continue
		}
		listed[item.name] = item.q
	}
	candidates := make([]acceptItem, 0, len(listed))
	for name, q := range listed {
		if isSupportedEncoding(name) && q > 0 {
			candidates = append(candidates, acceptItem{name: name, q: q})
		}
	}
	if star > 0 {
		pick := "gzip"
		for _, name := range supportedEncodings {
			if _, ok := listed[name]; !ok {
				pick = name
				break
			}
		}
		candidates = append(candidates, acceptItem{name: pick, q: star})
	}
	if len(candidates) == 0 {
		// identity未被显式拒绝时仍可回退
		if q, ok := listed[encodingIdentity]; !ok || q > 0 {
			return encodingIdentity, nil
		}
		return "", errNoAcceptableEncoding
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].q > candidates[j].q })
	return candidates[0].name, nil
}

func newEncodeWriter(w io.Writer, encoding string) (io.WriteCloser, error) {
	switch encoding {
	case "gzip", "x-gzip":
		return gzip.NewWriter(w), nil
	case "deflate":
		return zlib.NewWriter(w), nil
	case "br":
		return brotli.NewWriter(w), nil
	}
	return nil, fmt.Errorf("no encoder for encoding:%s", encoding)
}

// compressAllowed 压缩开关与no-transform约束
func (h *webdavHandler) compressAllowed(c *gin.Context) bool {
	if !h.c.enableCompress {
		return false
	}
	if strings.Contains(c.GetHeader("Cache-Control"), "no-transform") {
		return false
	}
	if strings.Contains(c.Writer.Header().Get("Cache-Control"), "no-transform") {
		return false
	}
	return true
}

// writeEncoded 按Accept-Encoding协商后输出响应体
func (h *webdavHandler) writeEncoded(c *gin.Context, code int, contentType string, render func(w io.Writer) error) error {
	if !h.compressAllowed(c) {
		c.Header("Content-Type", contentType)
		c.Status(code)
		return render(c.Writer)
	}
	c.Header("Vary", "Accept-Encoding")
	encoding, err := chooseEncoding(c.GetHeader("Accept-Encoding"))
	if err != nil {
		// 协商无交集属于请求级失败, 在此直接终结, 调用方不再补写响应
		proxyutil.FailStatus(c, http.StatusUnsupportedMediaType, err)
		return nil
	}
	c.Header("Content-Type", contentType)
	if encoding == encodingIdentity {
		c.Status(code)
		return render(c.Writer)
	}
	c.Header("Content-Encoding", encoding)
	c.Status(code)
	ew, err := newEncodeWriter(c.Writer, encoding)
	if err != nil {
		return err
	}
	if err := render(ew); err != nil {
		_ = ew.Close()
		return err
	}
	return ew.Close()
}
