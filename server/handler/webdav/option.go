package webdav

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *webdavHandler) handleOptions(c *gin.Context) {
	c.Header("Allow", strings.Join(AllowMethods, ", "))
	// class 1 + class 2 (锁)
	c.Header("DAV", "1, 2")
	c.Header("MS-Author-Via", "DAV")
	c.Status(http.StatusOK)
}
