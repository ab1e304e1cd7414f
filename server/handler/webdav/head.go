package webdav

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *webdavHandler) handleHead(c *gin.Context) {
	_, st, ok := h.openForRead(c)
	if !ok {
		return
	}
	c.Header("Content-Type", st.MediaType)
	c.Header("Content-Length", strconv.FormatInt(st.Length, 10))
	c.Header("ETag", st.Etag)
	c.Header("Last-Modified", time.UnixMilli(st.Mtime).UTC().Format(http.TimeFormat))
	c.Status(http.StatusOK)
}
