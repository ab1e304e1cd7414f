package webdav

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/entity"
	"github.com/xxxsen/davgate/proxyutil"
)

func (h *webdavHandler) openForRead(c *gin.Context) (dav.IResource, *entity.ResourceStat, bool) {
	ctx := c.Request.Context()
	location := h.buildSrcPath(c)
	if !h.adapter.IsAuthorized(ctx, location, c.Request.Method, h.principal(ctx)) {
		proxyutil.FailSilent(c, http.StatusUnauthorized, fmt.Errorf("adapter denied principal"))
		return nil, nil, false
	}
	res, err := h.adapter.GetResource(ctx, location)
	if err != nil {
		if errors.Is(err, dav.ErrNotFound) {
			proxyutil.FailSilent(c, http.StatusNotFound, err)
			return nil, nil, false
		}
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return nil, nil, false
	}
	if res.IsCollection() {
		proxyutil.FailSilent(c, http.StatusMethodNotAllowed, fmt.Errorf("cant open stream on collection"))
		return nil, nil, false
	}
	st, err := res.Stats(ctx)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, err)
		return nil, nil, false
	}
	return res, st, true
}

func (h *webdavHandler) handleGet(c *gin.Context) {
	ctx := c.Request.Context()
	res, st, ok := h.openForRead(c)
	if !ok {
		return
	}
	stream, err := res.ReadStream(ctx)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("open stream failed, err:%w", err))
		return
	}
	defer stream.Close()
	c.Header("ETag", st.Etag)
	if h.compressAllowed(c) {
		c.Header("Vary", "Accept-Encoding")
		encoding, err := chooseEncoding(c.GetHeader("Accept-Encoding"))
		if err != nil {
			proxyutil.FailStatus(c, http.StatusUnsupportedMediaType, err)
			return
		}
		if encoding != encodingIdentity {
			c.Header("Content-Type", st.MediaType)
			c.Header("Last-Modified", time.UnixMilli(st.Mtime).UTC().Format(http.TimeFormat))
			c.Header("Content-Encoding", encoding)
			c.Status(http.StatusOK)
			ew, err := newEncodeWriter(c.Writer, encoding)
			if err != nil {
				proxyutil.FailStatus(c, http.StatusInternalServerError, err)
				return
			}
			if _, err := io.Copy(ew, stream); err != nil {
				_ = ew.Close()
				return
			}
			_ = ew.Close()
			return
		}
	}
	// identity编码走ServeContent, 支持Range与条件请求
	if rs, ok := stream.(io.ReadSeeker); ok {
		http.ServeContent(c.Writer, c.Request, st.DisplayName, time.UnixMilli(st.Mtime), rs)
		return
	}
	c.Header("Content-Type", st.MediaType)
	c.Header("Content-Length", strconv.FormatInt(st.Length, 10))
	c.Header("Last-Modified", time.UnixMilli(st.Mtime).UTC().Format(http.TimeFormat))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, stream)
}
