package webdav

import (
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

func (h *webdavHandler) handlePut(c *gin.Context) {
	ctx := c.Request.Context()
	location := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, location, "PUT", h.principal(ctx)) {
		proxyutil.FailSilent(c, http.StatusUnauthorized, fmt.Errorf("adapter denied principal"))
		return
	}
	res, err := h.adapter.GetResource(ctx, location)
	exists := err == nil
	if err != nil && !errors.Is(err, dav.ErrNotFound) {
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	if exists && res.IsCollection() {
		proxyutil.FailSilent(c, http.StatusMethodNotAllowed, fmt.Errorf("put on collection"))
		return
	}
	// 覆盖已有资源仅改内容, 新建资源改动父级的命名空间映射
	need := davlock.PermFull
	if exists && !res.Provisional() {
		need = davlock.PermContents
	}
	code, _, err := h.permission(c, location, "PUT")
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("evaluate locks failed, err:%w", err))
		return
	}
	if code != davlock.PermFull && code < need {
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
	overwrote := exists && !res.Provisional()
	if !exists {
		res, err = h.adapter.CreatePlaceholder(ctx, location)
		if err != nil {
			if errors.Is(err, dav.ErrNoParent) {
				proxyutil.FailSilent(c, http.StatusConflict, err)
				return
			}
			proxyutil.FailStatus(c, h.statusFromErr(err), fmt.Errorf("create resource failed, err:%w", err))
			return
		}
	}
	bs, err := h.newBodyStream(c.Request)
	if err != nil {
		proxyutil.FailStatus(c, h.statusFromErr(err), fmt.Errorf("open body stream failed, err:%w", err))
		return
	}
	defer bs.Close()
	if err := res.WriteStream(ctx, bs, c.Request.ContentLength); err != nil {
		if bs.timedOut.Load() {
			proxyutil.FailStatus(c, http.StatusRequestTimeout, errBodyTimeout)
			return
		}
		proxyutil.FailStatus(c, h.statusFromErr(err), fmt.Errorf("write stream failed, err:%w", err))
		return
	}
	h.commitProvisionalLocks(c, res)
	if st, err := res.Stats(ctx); err == nil {
		c.Header("ETag", st.Etag)
	}
	if overwrote {
		c.Status(http.StatusNoContent)
		return
	}
	c.Status(http.StatusCreated)
}

// commitProvisionalLocks lock-null资源首次PUT成功后, 其上的锁转正
func (h *webdavHandler) commitProvisionalLocks(c *gin.Context, res dav.IResource) {
	ctx := c.Request.Context()
	locks, err := res.Locks().List(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Error("list locks failed", zap.Error(err))
		return
	}
	for _, l := range locks {
		if !l.Provisional {
			continue
		}
		l.Provisional = false
		if err := res.Locks().Save(ctx, l); err != nil {
			logutil.GetLogger(ctx).Error("commit provisional lock failed",
				zap.String("token", l.Token), zap.Error(err))
		}
	}
}
