package webdav

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/proxyutil"
)

func (h *webdavHandler) handleDelete(c *gin.Context) {
	ctx := c.Request.Context()
	location := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, location, "DELETE", h.principal(ctx)) {
		proxyutil.FailSilent(c, http.StatusUnauthorized, fmt.Errorf("adapter denied principal"))
		return
	}
	res, err := h.adapter.GetResource(ctx, location)
	if err != nil {
		if errors.Is(err, dav.ErrNotFound) {
			proxyutil.FailSilent(c, http.StatusNotFound, err)
			return
		}
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	if res.IsCollection() {
		if depth := h.depthOf(c, depthInfinity); depth != depthInfinity {
			proxyutil.FailStatus(c, http.StatusBadRequest, errBadDepth)
			return
		}
	}
	code, _, err := h.permission(c, location, "DELETE")
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("evaluate locks failed, err:%w", err))
		return
	}
	if code != davlock.PermFull {
		h.lockedError(c)
		return
	}
	ok, err := h.checkIfConditions(ctx, c.GetHeader("If"), location)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, err)
		return
	}
	if !ok {
		proxyutil.FailSilent(c, http.StatusPreconditionFailed, fmt.Errorf("if condition not satisfied"))
		return
	}
	ms := newMultiStatus()
	h.deleteRecursive(ctx, c, res, ms)
	if ms.empty() {
		c.Status(http.StatusNoContent)
		return
	}
	if err := ms.render(h, c, nil); err != nil {
		logutil.GetLogger(ctx).Error("write delete response failed", zap.Error(err))
	}
}

// deleteRecursive 后序遍历逐个删除, 子级失败时祖先保留并以424报告
func (h *webdavHandler) deleteRecursive(ctx context.Context, c *gin.Context, res dav.IResource, ms *multiStatus) bool {
	url := res.CanonicalURL()
	isCol := res.IsCollection()
	if isCol {
		children, err := res.Children(ctx)
		if err != nil {
			ms.addStatus(h.href(url, true), h.statusFromErr(err))
			return false
		}
		allOk := true
		for _, kid := range children {
			if !h.deleteRecursive(ctx, c, kid, ms) {
				allOk = false
			}
		}
		if !allOk {
			ms.addStatus(h.href(url, true), StatusFailedDependency)
			return false
		}
	}
	code, _, err := h.permission(c, url, "DELETE")
	if err != nil {
		ms.addStatus(h.href(url, isCol), h.statusFromErr(err))
		return false
	}
	if code != davlock.PermFull {
		ms.addError(h.href(url, isCol), StatusLocked, "lock-token-submitted")
		return false
	}
	if err := res.Delete(ctx); err != nil {
		ms.addStatus(h.href(url, isCol), h.statusFromErr(err))
		return false
	}
	return true
}
