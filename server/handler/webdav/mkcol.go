package webdav

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/proxyutil"
)

func (h *webdavHandler) handleMkcol(c *gin.Context) {
	ctx := c.Request.Context()
	location := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, location, "MKCOL", h.principal(ctx)) {
		proxyutil.FailSilent(c, http.StatusUnauthorized, fmt.Errorf("adapter denied principal"))
		return
	}
	if c.Request.ContentLength > 0 {
		// MKCOL不接受请求体
		proxyutil.FailStatus(c, http.StatusUnsupportedMediaType, fmt.Errorf("mkcol with body is not supported"))
		return
	}
	code, _, err := h.permission(c, location, "MKCOL")
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
	res, err := h.adapter.GetResource(ctx, location)
	switch {
	case err == nil:
		// lock-null占位资源可由MKCOL转正, 其余场景目标已存在
		if !res.Provisional() {
			proxyutil.FailSilent(c, http.StatusMethodNotAllowed, fmt.Errorf("target already exist"))
			return
		}
	case errors.Is(err, dav.ErrNotFound):
		res, err = h.adapter.CreatePlaceholder(ctx, location)
		if err != nil {
			if errors.Is(err, dav.ErrNoParent) {
				proxyutil.FailSilent(c, http.StatusConflict, err)
				return
			}
			proxyutil.FailStatus(c, h.statusFromErr(err), fmt.Errorf("create collection failed, err:%w", err))
			return
		}
	default:
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	if err := res.MakeCollection(ctx); err != nil {
		proxyutil.FailStatus(c, h.statusFromErr(err), fmt.Errorf("make collection failed, err:%w", err))
		return
	}
	c.Status(http.StatusCreated)
}
