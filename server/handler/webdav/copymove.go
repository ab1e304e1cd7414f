package webdav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/proxyutil"
	"github.com/xxxsen/davgate/utils"
)

const defaultCopyConcurrency = 4

func (h *webdavHandler) handleCopyMove(c *gin.Context) {
	ctx := c.Request.Context()
	method := c.Request.Method
	src := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, src, method, h.principal(ctx)) {
		proxyutil.FailSilent(c, http.StatusUnauthorized, fmt.Errorf("adapter denied principal"))
		return
	}
	dst, err := h.tryBuildDstPath(c)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("build dst path failed, err:%w", err))
		return
	}
	if src == dst {
		proxyutil.FailSilent(c, http.StatusForbidden, fmt.Errorf("destination equals source"))
		return
	}
	if utils.IsSubPath(src, dst) {
		proxyutil.FailSilent(c, http.StatusForbidden, fmt.Errorf("destination inside source"))
		return
	}
	depth := h.depthOf(c, depthInfinity)
	if method == "MOVE" && depth != depthInfinity {
		proxyutil.FailStatus(c, http.StatusBadRequest, errBadDepth)
		return
	}
	if method == "COPY" && depth != depthZero && depth != depthInfinity {
		proxyutil.FailStatus(c, http.StatusBadRequest, errBadDepth)
		return
	}
	srcRes, err := h.adapter.GetResource(ctx, src)
	if err != nil {
		if errors.Is(err, dav.ErrNotFound) {
			proxyutil.FailSilent(c, http.StatusNotFound, err)
			return
		}
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	_, dstErr := h.adapter.GetResource(ctx, dst)
	dstExists := dstErr == nil
	if dstExists && !isOverwrite(c) {
		proxyutil.FailSilent(c, http.StatusPreconditionFailed, fmt.Errorf("destination exist and overwrite disabled"))
		return
	}
	// COPY只需仲裁目标侧的锁, MOVE源目两侧均需要
	code, _, err := h.permission(c, dst, method)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("evaluate locks failed, err:%w", err))
		return
	}
	if code != davlock.PermFull {
		h.lockedError(c)
		return
	}
	if method == "MOVE" {
		code, _, err := h.permission(c, src, method)
		if err != nil {
			proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("evaluate locks failed, err:%w", err))
			return
		}
		if code != davlock.PermFull {
			h.lockedError(c)
			return
		}
	}
	ok, err := h.checkIfConditions(ctx, c.GetHeader("If"), src)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, err)
		return
	}
	if !ok {
		proxyutil.FailSilent(c, http.StatusPreconditionFailed, fmt.Errorf("if condition not satisfied"))
		return
	}
	ms := newMultiStatus()
	if dstExists {
		dstRes, err := h.adapter.GetResource(ctx, dst)
		if err == nil && !h.deleteRecursive(ctx, c, dstRes, ms) {
			if err := ms.render(h, c, nil); err != nil {
				logutil.GetLogger(ctx).Error("write copymove response failed", zap.Error(err))
			}
			return
		}
	}
	if method == "COPY" {
		h.doCopy(ctx, c, srcRes, dst, depth, ms)
	} else {
		h.doMove(ctx, c, srcRes, dst, ms)
	}
	if c.IsAborted() {
		return
	}
	switch {
	case !ms.empty():
		if err := ms.render(h, c, nil); err != nil {
			logutil.GetLogger(ctx).Error("write copymove response failed", zap.Error(err))
		}
	case dstExists:
		c.Status(http.StatusNoContent)
	default:
		c.Status(http.StatusCreated)
	}
}

func (h *webdavHandler) doCopy(ctx context.Context, c *gin.Context, srcRes dav.IResource, dst string, depth int, ms *multiStatus) {
	var mu sync.Mutex
	h.copyRecursive(ctx, srcRes, dst, depth, ms, &mu)
}

// copyRecursive 复制当前节点后并行分发子级, 单个子级失败仅记入multistatus
func (h *webdavHandler) copyRecursive(ctx context.Context, src dav.IResource, dst string, depth int, ms *multiStatus, mu *sync.Mutex) bool {
	isCol := src.IsCollection()
	if _, err := src.CopyTo(ctx, dst); err != nil {
		mu.Lock()
		ms.addStatus(h.href(dst, isCol), h.statusFromErr(err))
		mu.Unlock()
		return false
	}
	if !isCol || depth == depthZero {
		return true
	}
	children, err := src.Children(ctx)
	if err != nil {
		mu.Lock()
		ms.addStatus(h.href(dst, true), h.statusFromErr(err))
		mu.Unlock()
		return false
	}
	eg, subctx := errgroup.WithContext(ctx)
	eg.SetLimit(defaultCopyConcurrency)
	for _, kid := range children {
		kid := kid
		eg.Go(func() error {
			h.copyRecursive(subctx, kid, utils.JoinPath(dst, utils.BaseName(kid.CanonicalURL())), depthInfinity, ms, mu)
			return nil
		})
	}
	_ = eg.Wait()
	return true
}

func (h *webdavHandler) doMove(ctx context.Context, c *gin.Context, srcRes dav.IResource, dst string, ms *multiStatus) {
	principal := h.principal(ctx)
	tokens := h.submittedTokens(c)
	locks, err := h.subtreeLocks(ctx, srcRes)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("collect locks failed, err:%w", err))
		return
	}
	allOwned := true
	for _, l := range locks {
		if !l.OwnedBy(principal, tokens) {
			allOwned = false
			break
		}
	}
	dstRes, err := srcRes.MoveTo(ctx, dst)
	if err != nil {
		ms.addStatus(h.href(srcRes.CanonicalURL(), srcRes.IsCollection()), h.statusFromErr(err))
		return
	}
	// 仅当请求方持有全部受影响的锁时, 锁随MOVE保留
	if !allOwned {
		h.dropSubtreeLocks(ctx, dstRes)
	}
}

func (h *webdavHandler) subtreeLocks(ctx context.Context, res dav.IResource) ([]*davlock.Lock, error) {
	locks, err := res.Locks().List(ctx)
	if err != nil {
		return nil, err
	}
	if !res.IsCollection() {
		return locks, nil
	}
	children, err := res.Children(ctx)
	if err != nil {
		return nil, err
	}
	for _, kid := range children {
		sub, err := h.subtreeLocks(ctx, kid)
		if err != nil {
			return nil, err
		}
		locks = append(locks, sub...)
	}
	return locks, nil
}

func (h *webdavHandler) dropSubtreeLocks(ctx context.Context, res dav.IResource) {
	locks, err := res.Locks().List(ctx)
	if err == nil {
		for _, l := range locks {
			_ = res.Locks().Delete(ctx, l.Token)
		}
	}
	if !res.IsCollection() {
		return
	}
	children, err := res.Children(ctx)
	if err != nil {
		return
	}
	for _, kid := range children {
		h.dropSubtreeLocks(ctx, kid)
	}
}
