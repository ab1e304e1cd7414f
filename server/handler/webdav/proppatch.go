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
	"github.com/xxxsen/davgate/davxml"
	"github.com/xxxsen/davgate/proxyutil"
)

type proppatchItem struct {
	remove bool
	name   davxml.Name
	value  *davxml.Value
}

func parseProppatchBody(doc *davxml.Document) ([]proppatchItem, error) {
	if doc == nil {
		return nil, fmt.Errorf("body required")
	}
	if !doc.Root.Name.IsDAV() || doc.Root.Name.Local != "propertyupdate" {
		return nil, fmt.Errorf("unexpected root element:%s", doc.Root.Name.Key())
	}
	var rs []proppatchItem
	for _, kid := range doc.Root.Val.Kids {
		if !kid.Name.IsDAV() {
			continue
		}
		var remove bool
		switch kid.Name.Local {
		case "set":
			remove = false
		case "remove":
			remove = true
		default:
			continue
		}
		prop := kid.Val.Find(davxml.DAV("prop"))
		if prop == nil {
			return nil, fmt.Errorf("missing prop element in %s", kid.Name.Local)
		}
		for _, p := range prop.Kids {
			rs = append(rs, proppatchItem{remove: remove, name: p.Name, value: p.Val})
		}
	}
	if len(rs) == 0 {
		return nil, fmt.Errorf("no property operation found")
	}
	return rs, nil
}

// handlePropPatch 按文档顺序应用变更, 整体事务化:
// 任一属性失败时其余属性以424报告且不落盘
func (h *webdavHandler) handlePropPatch(c *gin.Context) {
	ctx := c.Request.Context()
	location := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, location, "PROPPATCH", h.principal(ctx)) {
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
	code, _, err := h.permission(c, location, "PROPPATCH")
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
	doc, status, err := h.readDavBody(c)
	if err != nil {
		proxyutil.FailStatus(c, status, fmt.Errorf("read proppatch body failed, err:%w", err))
		return
	}
	items, err := parseProppatchBody(doc)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("parse proppatch body failed, err:%w", err))
		return
	}

	protected := davxml.Elem()
	staged := make([]dav.PropPatch, 0, len(items))
	stagedProp := davxml.Elem()
	for _, item := range items {
		if isLiveProp(item.name) {
			protected.Add(item.name, davxml.Elem())
			continue
		}
		staged = append(staged, dav.PropPatch{Remove: item.remove, Name: item.name, Value: item.value})
		stagedProp.Add(item.name, davxml.Elem())
	}

	st, err := res.Stats(ctx)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	ms := newMultiStatus()
	item := ms.add(h.href(location, st.IsDir))
	switch {
	case len(protected.Kids) > 0:
		item.addPropStatErr(http.StatusForbidden, protected, "cannot-modify-protected-property")
		if len(stagedProp.Kids) > 0 {
			item.addPropStat(StatusFailedDependency, stagedProp, "")
		}
	default:
		if err := res.Properties().Patch(ctx, staged); err != nil {
			logutil.GetLogger(ctx).Error("patch dead props failed",
				zap.String("url", location), zap.Error(err))
			item.addPropStat(h.statusFromErr(err), stagedProp, "")
			break
		}
		item.addPropStat(http.StatusOK, stagedProp, "")
	}
	if err := ms.render(h, c, doc.Prefix); err != nil {
		logutil.GetLogger(ctx).Error("write proppatch response failed", zap.Error(err))
	}
}
