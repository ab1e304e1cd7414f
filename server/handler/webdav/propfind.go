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
	"github.com/xxxsen/davgate/davxml"
	"github.com/xxxsen/davgate/proxyutil"
)

type propfindKind int

const (
	propfindAllprop propfindKind = iota
	propfindPropname
	propfindProp
)

type propfindRequest struct {
	kind  propfindKind
	names []davxml.Name
}

func parsePropfindBody(doc *davxml.Document) (*propfindRequest, error) {
	req := &propfindRequest{kind: propfindAllprop}
	if doc == nil {
		// 空body等价于allprop
		return req, nil
	}
	if !doc.Root.Name.IsDAV() || doc.Root.Name.Local != "propfind" {
		return nil, fmt.Errorf("unexpected root element:%s", doc.Root.Name.Key())
	}
	root := doc.Root.Val
	switch {
	case root.Has(davxml.DAV("propname")):
		req.kind = propfindPropname
	case root.Has(davxml.DAV("prop")):
		req.kind = propfindProp
		for _, kid := range root.Find(davxml.DAV("prop")).Kids {
			req.names = append(req.names, kid.Name)
		}
	case root.Has(davxml.DAV("allprop")):
		if inc := root.Find(davxml.DAV("include")); inc != nil {
			for _, kid := range inc.Kids {
				req.names = append(req.names, kid.Name)
			}
		}
	default:
		return nil, fmt.Errorf("no propfind selector found")
	}
	return req, nil
}

func (h *webdavHandler) handlePropfind(c *gin.Context) {
	ctx := c.Request.Context()
	location := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, location, "PROPFIND", h.principal(ctx)) {
		proxyutil.FailSilent(c, http.StatusUnauthorized, fmt.Errorf("adapter denied principal"))
		return
	}
	doc, code, err := h.readDavBody(c)
	if err != nil {
		proxyutil.FailStatus(c, code, fmt.Errorf("read propfind body failed, err:%w", err))
		return
	}
	req, err := parsePropfindBody(doc)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("parse propfind body failed, err:%w", err))
		return
	}
	depth := h.depthOf(c, depthInfinity)
	if depth == depthInvalid {
		proxyutil.FailStatus(c, http.StatusBadRequest, errBadDepth)
		return
	}
	if depth == depthInfinity && !h.c.propfindInfinity {
		// 全量遍历默认收敛到直接子级
		depth = depthOne
	}
	res, err := h.adapter.GetResource(ctx, location)
	if err != nil {
		if errors.Is(err, dav.ErrNotFound) {
			proxyutil.FailSilent(c, http.StatusNotFound, err)
			return
		}
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("get resource failed, location:%s, err:%w", location, err))
		return
	}
	ms := newMultiStatus()
	h.propfindWalk(ctx, res, depth, req, ms)
	var prefixes map[string]string
	if doc != nil {
		prefixes = doc.Prefix
	}
	if err := ms.render(h, c, prefixes); err != nil {
		logutil.GetLogger(ctx).Error("write propfind response failed", zap.Error(err))
	}
}

func (h *webdavHandler) propfindWalk(ctx context.Context, res dav.IResource, depth int, req *propfindRequest, ms *multiStatus) {
	h.propfindResource(ctx, res, req, ms)
	if depth == depthZero || !res.IsCollection() {
		return
	}
	children, err := res.Children(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Error("list children failed",
			zap.String("url", res.CanonicalURL()), zap.Error(err))
		return
	}
	next := depthZero
	if depth == depthInfinity {
		next = depthInfinity
	}
	for _, kid := range children {
		h.propfindWalk(ctx, kid, next, req, ms)
	}
}

func (h *webdavHandler) propfindResource(ctx context.Context, res dav.IResource, req *propfindRequest, ms *multiStatus) {
	url := res.CanonicalURL()
	st, err := res.Stats(ctx)
	if err != nil {
		ms.addStatus(h.href(url, false), h.statusFromErr(err))
		return
	}
	item := ms.add(h.href(url, st.IsDir))
	dead, err := res.Properties().List(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Error("list dead props failed", zap.String("url", url), zap.Error(err))
	}
	switch req.kind {
	case propfindPropname:
		prop := davxml.Elem()
		for _, local := range []string{"creationdate", "getcontentlength", "getcontenttype", "getetag",
			"getlastmodified", "resourcetype", "supportedlock", "lockdiscovery"} {
			if st.IsDir && (local == "getcontentlength" || local == "getcontenttype" || local == "getetag") {
				continue
			}
			prop.Add(davxml.DAV(local), davxml.Elem())
		}
		for _, d := range dead {
			prop.Add(d.Name, davxml.Elem())
		}
		item.addPropStat(http.StatusOK, prop, "")
	case propfindProp:
		found := davxml.Elem()
		missing := davxml.Elem()
		for _, name := range req.names {
			if isLiveProp(name) {
				v, ok, err := h.livePropValue(ctx, res, st, name.Local)
				if err != nil {
					logutil.GetLogger(ctx).Error("compute live prop failed",
						zap.String("prop", name.Key()), zap.Error(err))
					ok = false
				}
				if ok {
					found.Add(name, v)
				} else {
					missing.Add(name, davxml.Elem())
				}
				continue
			}
			if v := findDeadProp(dead, name); v != nil {
				found.Add(name, echoLang(v))
			} else {
				missing.Add(name, davxml.Elem())
			}
		}
		if len(found.Kids) > 0 {
			item.addPropStat(http.StatusOK, found, "")
		}
		if len(missing.Kids) > 0 {
			item.addPropStat(http.StatusNotFound, missing, "")
		}
		if len(found.Kids) == 0 && len(missing.Kids) == 0 {
			item.addPropStat(http.StatusOK, davxml.Elem(), "")
		}
	default: // allprop, include列出的属性本就在全集内
		prop := davxml.Elem()
		for _, local := range []string{"creationdate", "getcontentlength", "getcontenttype", "getetag",
			"getlastmodified", "resourcetype", "supportedlock", "lockdiscovery"} {
			v, ok, err := h.livePropValue(ctx, res, st, local)
			if err != nil {
				logutil.GetLogger(ctx).Error("compute live prop failed",
					zap.String("prop", local), zap.Error(err))
				continue
			}
			if ok {
				prop.Add(davxml.DAV(local), v)
			}
		}
		for _, d := range dead {
			prop.Add(d.Name, echoLang(d.Val))
		}
		item.addPropStat(http.StatusOK, prop, "")
	}
}

func findDeadProp(dead []davxml.Child, name davxml.Name) *davxml.Value {
	for _, d := range dead {
		if d.Name == name {
			return d.Val
		}
	}
	return nil
}

// echoLang 回显属性写入时生效的xml:lang
func echoLang(v *davxml.Value) *davxml.Value {
	if v == nil || v.Lang == "" {
		return v
	}
	nv := v.Clone()
	nv.SetAttr(davxml.Name{Local: "xml:lang"}, v.Lang)
	return nv
}
