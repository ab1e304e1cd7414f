package webdav

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/davxml"
	"github.com/xxxsen/davgate/proxyutil"
)

type lockInfoRequest struct {
	exclusive bool
	ownerXML  string
}

func parseLockInfoBody(doc *davxml.Document) (*lockInfoRequest, int, error) {
	if !doc.Root.Name.IsDAV() || doc.Root.Name.Local != "lockinfo" {
		return nil, http.StatusBadRequest, fmt.Errorf("unexpected root element:%s", doc.Root.Name.Key())
	}
	root := doc.Root.Val
	scope := root.Find(davxml.DAV("lockscope"))
	ltype := root.Find(davxml.DAV("locktype"))
	if scope == nil || ltype == nil {
		return nil, http.StatusBadRequest, errBadLockInfo
	}
	if !ltype.Has(davxml.DAV("write")) {
		// 仅支持write锁
		return nil, http.StatusNotImplemented, errBadLockInfo
	}
	req := &lockInfoRequest{}
	switch {
	case scope.Has(davxml.DAV("exclusive")):
		req.exclusive = true
	case scope.Has(davxml.DAV("shared")):
		req.exclusive = false
	default:
		return nil, http.StatusBadRequest, errBadLockInfo
	}
	if owner := root.Find(davxml.DAV("owner")); owner != nil {
		frag, err := davxml.WriteFragment(davxml.Child{Name: davxml.DAV("owner"), Val: owner})
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		req.ownerXML = frag
	}
	return req, 0, nil
}

func (h *webdavHandler) handleLock(c *gin.Context) {
	ctx := c.Request.Context()
	location := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, location, "LOCK", h.principal(ctx)) {
		proxyutil.FailSilent(c, http.StatusUnauthorized, fmt.Errorf("adapter denied principal"))
		return
	}
	timeout := parseTimeout(c.GetHeader("Timeout"), h.c.defaultLockTimeout, h.c.maxLockTimeout)
	doc, status, err := h.readDavBody(c)
	if err != nil {
		proxyutil.FailStatus(c, status, fmt.Errorf("read lock body failed, err:%w", err))
		return
	}
	if doc == nil {
		h.handleLockRefresh(c, location, timeout)
		return
	}
	req, status, err := parseLockInfoBody(doc)
	if err != nil {
		proxyutil.FailStatus(c, status, fmt.Errorf("parse lock body failed, err:%w", err))
		return
	}
	depth := h.depthOf(c, depthZero)
	if depth != depthZero && depth != depthInfinity {
		proxyutil.FailStatus(c, http.StatusBadRequest, errBadDepth)
		return
	}
	res, err := h.adapter.GetResource(ctx, location)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, dav.ErrNotFound):
		// lock-null: 先建占位资源, 锁标记为临时态
		res, err = h.adapter.CreatePlaceholder(ctx, location)
		if err != nil {
			if errors.Is(err, dav.ErrNoParent) {
				proxyutil.FailSilent(c, http.StatusConflict, err)
				return
			}
			proxyutil.FailStatus(c, h.statusFromErr(err), fmt.Errorf("create lock-null resource failed, err:%w", err))
			return
		}
		created = true
	default:
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	code, set, err := h.permission(c, location, "LOCK")
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("evaluate locks failed, err:%w", err))
		return
	}
	switch {
	case code == davlock.PermFull:
	case code == davlock.PermShared && !req.exclusive:
	case req.exclusive:
		if created {
			_ = res.Delete(ctx)
		}
		h.writeLockConflict(c, set.Roots())
		return
	default:
		// 共享锁请求撞上独占锁
		if created {
			_ = res.Delete(ctx)
		}
		proxyutil.FailSilent(c, http.StatusConflict, fmt.Errorf("conflicting exclusive lock exist"))
		return
	}
	l := &davlock.Lock{
		Token:       davlock.NewToken(),
		Root:        location,
		Principal:   h.principal(ctx),
		Created:     time.Now(),
		Timeout:     timeout,
		Exclusive:   req.exclusive,
		ZeroDepth:   depth == depthZero,
		OwnerXML:    req.ownerXML,
		Provisional: created,
	}
	if err := res.Locks().Save(ctx, l); err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("save lock failed, err:%w", err))
		return
	}
	c.Header("Lock-Token", "<"+l.Token+">")
	status = http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeLockDiscovery(c, status, doc.Prefix, l)
}

// handleLockRefresh 空body的LOCK为刷新, token经由If头提交
func (h *webdavHandler) handleLockRefresh(c *gin.Context, location string, timeout time.Duration) {
	ctx := c.Request.Context()
	ih, ok := parseIfHeader(c.GetHeader("If"))
	if !ok {
		proxyutil.FailStatus(c, http.StatusBadRequest, errBadIfHeader)
		return
	}
	tokens := ih.tokens()
	if len(tokens) == 0 {
		proxyutil.FailStatus(c, http.StatusBadRequest, errBadIfHeader)
		return
	}
	set, err := h.engine.Effective(ctx, location)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	var target *davlock.Lock
	for _, l := range set.All() {
		if l.Token == tokens[0] {
			target = l
			break
		}
	}
	if target == nil {
		proxyutil.FailSilent(c, http.StatusPreconditionFailed, fmt.Errorf("no such lock, token:%s", tokens[0]))
		return
	}
	if target.Principal != h.principal(ctx) {
		proxyutil.FailSilent(c, http.StatusForbidden, fmt.Errorf("lock owned by other principal"))
		return
	}
	target.Refresh(time.Now(), timeout)
	res, err := h.adapter.GetResource(ctx, target.Root)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return
	}
	if err := res.Locks().Save(ctx, target); err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("save lock failed, err:%w", err))
		return
	}
	h.writeLockDiscovery(c, http.StatusOK, nil, target)
}

func (h *webdavHandler) writeLockDiscovery(c *gin.Context, status int, prefixes map[string]string, l *davlock.Lock) {
	prop := davxml.Elem()
	prop.Add(davxml.DAV("lockdiscovery"), h.lockDiscoveryValue([]*davlock.Lock{l}))
	s := &davxml.Serializer{Prefix: prefixes, Indent: h.c.prettyXML}
	if err := h.writeEncoded(c, status, xmlContentType, func(w io.Writer) error {
		return s.Write(w, davxml.Child{Name: davxml.DAV("prop"), Val: prop})
	}); err != nil {
		logutil.GetLogger(c.Request.Context()).Error("write lock response failed", zap.Error(err))
	}
}

// writeLockConflict 锁竞争应答: 423 + no-conflicting-lock错误体, 枚举冲突href
func (h *webdavHandler) writeLockConflict(c *gin.Context, roots []string) {
	c.Header("Retry-After", "60")
	ncl := davxml.Elem()
	for _, root := range roots {
		ncl.AddText(davxml.DAV("href"), escapeHref(h.c.prefix+root))
	}
	errElem := davxml.Elem()
	errElem.Add(davxml.DAV("no-conflicting-lock"), ncl)
	s := &davxml.Serializer{Indent: h.c.prettyXML}
	if err := h.writeEncoded(c, StatusLocked, xmlContentType, func(w io.Writer) error {
		return s.Write(w, davxml.Child{Name: davxml.DAV("error"), Val: errElem})
	}); err != nil {
		logutil.GetLogger(c.Request.Context()).Error("write lock conflict failed", zap.Error(err))
	}
	c.Abort()
}
