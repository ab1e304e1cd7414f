package webdav

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/davgate/davxml"
)

const xmlContentType = "application/xml; charset=utf-8"

var supportedCharsets = map[string]struct{}{
	"":         {},
	"utf-8":    {},
	"us-ascii": {},
}

func checkXMLContentType(ct string) error {
	if ct == "" {
		return nil
	}
	mediatype, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return fmt.Errorf("parse content type failed, err:%w", err)
	}
	if mediatype != "application/xml" && mediatype != "text/xml" {
		return fmt.Errorf("unexpected media type:%s", mediatype)
	}
	charset := strings.ToLower(params["charset"])
	if _, ok := supportedCharsets[charset]; !ok {
		return fmt.Errorf("unsupported charset:%s", charset)
	}
	return nil
}

// readDavBody 解码请求体并解析为规整树, 空body返回nil文档.
// 第二个返回值为失败时应答的状态码
func (h *webdavHandler) readDavBody(c *gin.Context) (*davxml.Document, int, error) {
	r := c.Request
	if r.ContentLength == 0 {
		return nil, 0, nil
	}
	bs, err := h.newBodyStream(r)
	if err != nil {
		if errors.Is(err, errBadEncoding) {
			return nil, http.StatusUnsupportedMediaType, err
		}
		return nil, http.StatusBadRequest, err
	}
	defer bs.Close()
	if err := checkXMLContentType(r.Header.Get("Content-Type")); err != nil {
		return nil, http.StatusUnsupportedMediaType, err
	}
	doc, err := davxml.Parse(bs)
	if err != nil {
		if errors.Is(err, davxml.ErrEmptyBody) {
			return nil, 0, nil
		}
		if bs.timedOut.Load() {
			return nil, http.StatusRequestTimeout, errBodyTimeout
		}
		return nil, http.StatusBadRequest, err
	}
	return doc, 0, nil
}

// writeErrorXML 非207错误的XML错误体: <error xmlns="DAV:"><precondition/></error>
func (h *webdavHandler) writeErrorXML(c *gin.Context, code int, precondition string, desc string) {
	root := davxml.Elem()
	root.Add(davxml.DAV(precondition), davxml.Elem())
	if desc != "" {
		root.AddText(davxml.DAV("responsedescription"), desc)
	}
	s := &davxml.Serializer{Indent: h.c.prettyXML}
	_ = h.writeEncoded(c, code, xmlContentType, func(w io.Writer) error {
		return s.Write(w, davxml.Child{Name: davxml.DAV("error"), Val: root})
	})
	c.Abort()
}
