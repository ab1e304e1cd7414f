package webdav

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/proxyutil"
)

func (h *webdavHandler) handleUnlock(c *gin.Context) {
	ctx := c.Request.Context()
	location := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, location, "UNLOCK", h.principal(ctx)) {
		proxyutil.FailSilent(c, http.StatusUnauthorized, fmt.Errorf("adapter denied principal"))
		return
	}
	token := c.GetHeader("Lock-Token")
	if len(token) < 2 || token[0] != '<' || token[len(token)-1] != '>' {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("invalid lock token:%s", token))
		return
	}
	token = strings.Trim(token, "<>")
	set, err := h.engine.Effective(ctx, location)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	var target *davlock.Lock
	for _, l := range set.All() {
		if l.Token == token {
			target = l
			break
		}
	}
	if target == nil {
		h.writeErrorXML(c, http.StatusConflict, "lock-token-matches-request-uri", "no such lock on request uri")
		return
	}
	if target.Principal != h.principal(ctx) {
		proxyutil.FailSilent(c, http.StatusForbidden, fmt.Errorf("lock owned by other principal"))
		return
	}
	res, err := h.adapter.GetResource(ctx, target.Root)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	if err := res.Locks().Delete(ctx, token); err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("delete lock failed, err:%w", err))
		return
	}
	h.cleanupLockNull(c, target.Root)
	c.Status(http.StatusNoContent)
}

// cleanupLockNull 解锁后若lock-null资源上已无剩余锁, 占位资源随之回收
func (h *webdavHandler) cleanupLockNull(c *gin.Context, url string) {
	ctx := c.Request.Context()
	res, err := h.adapter.GetResource(ctx, url)
	if err != nil {
		return
	}
	if !res.Provisional() {
		return
	}
	locks, err := res.Locks().List(ctx)
	if err != nil || len(locks) > 0 {
		return
	}
	if err := res.Delete(ctx); err != nil {
		logutil.GetLogger(ctx).Error("cleanup lock-null resource failed",
			zap.String("url", url), zap.Error(err))
	}
}
