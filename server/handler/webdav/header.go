package webdav

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/davgate/davlock"
)

const (
	depthZero     = 0
	depthOne      = 1
	depthInfinity = -1
	depthInvalid  = -2
)

// parseDepth 不同verb对合法取值另有约束, 由各handler自行收敛
func parseDepth(s string) int {
	switch s {
	case "0":
		return depthZero
	case "1":
		return depthOne
	case "infinity":
		return depthInfinity
	}
	return depthInvalid
}

func (h *webdavHandler) depthOf(c *gin.Context, def int) int {
	hdr := c.GetHeader("Depth")
	if hdr == "" {
		return def
	}
	return parseDepth(hdr)
}

// isOverwrite Overwrite头缺省为T
func isOverwrite(c *gin.Context) bool {
	return c.GetHeader("Overwrite") != "F"
}

// parseTimeout 解析Timeout头, 逗号分隔的候选中取首个可接受项, 超出上限时压到上限
func parseTimeout(hdr string, def time.Duration, max time.Duration) time.Duration {
	if hdr == "" {
		return def
	}
	for _, item := range strings.Split(hdr, ",") {
		item = strings.TrimSpace(item)
		if item == "Infinite" {
			if max < 0 {
				return davlock.TimeoutInfinite
			}
			return max
		}
		if !strings.HasPrefix(item, "Second-") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(item, "Second-"), 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		d := time.Duration(n) * time.Second
		if max >= 0 && d > max {
			d = max
		}
		return d
	}
	return def
}
