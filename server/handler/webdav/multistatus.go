package webdav

import (
	"fmt"
	"io"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/davgate/davxml"
)

type propStat struct {
	code         int
	desc         string
	precondition string
	prop         *davxml.Value
}

// resStatus 单个资源的处理结果: 携带propstat分组时逐属性报告,
// 否则以资源级status呈现
type resStatus struct {
	href         string
	code         int
	precondition string
	pstats       []propStat
}

func (st *resStatus) addPropStat(code int, prop *davxml.Value, desc string) *resStatus {
	st.pstats = append(st.pstats, propStat{code: code, prop: prop, desc: desc})
	return st
}

func (st *resStatus) addPropStatErr(code int, prop *davxml.Value, precondition string) *resStatus {
	st.pstats = append(st.pstats, propStat{code: code, prop: prop, precondition: precondition})
	return st
}

type multiStatus struct {
	items []*resStatus
}

func newMultiStatus() *multiStatus {
	return &multiStatus{}
}

func (m *multiStatus) add(href string) *resStatus {
	st := &resStatus{href: href}
	m.items = append(m.items, st)
	return st
}

func (m *multiStatus) addStatus(href string, code int) *resStatus {
	st := m.add(href)
	st.code = code
	return st
}

func (m *multiStatus) addError(href string, code int, precondition string) *resStatus {
	st := m.addStatus(href, code)
	st.precondition = precondition
	return st
}

func (m *multiStatus) empty() bool {
	return len(m.items) == 0
}

func statusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, statusText(code))
}

func escapeHref(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

func (m *multiStatus) tree() davxml.Child {
	root := davxml.Elem()
	for _, item := range m.items {
		resp := davxml.Elem()
		resp.AddText(davxml.DAV("href"), escapeHref(item.href))
		if len(item.pstats) > 0 {
			for _, ps := range item.pstats {
				pstat := davxml.Elem()
				pstat.Add(davxml.DAV("prop"), ps.prop)
				pstat.AddText(davxml.DAV("status"), statusLine(ps.code))
				if ps.precondition != "" {
					errElem := davxml.Elem()
					errElem.Add(davxml.DAV(ps.precondition), davxml.Elem())
					pstat.Add(davxml.DAV("error"), errElem)
				}
				if ps.desc != "" {
					pstat.AddText(davxml.DAV("responsedescription"), ps.desc)
				}
				resp.Add(davxml.DAV("propstat"), pstat)
			}
		} else {
			resp.AddText(davxml.DAV("status"), statusLine(item.code))
			if item.precondition != "" {
				errElem := davxml.Elem()
				errElem.Add(davxml.DAV(item.precondition), davxml.Elem())
				resp.Add(davxml.DAV("error"), errElem)
			}
		}
		root.Add(davxml.DAV("response"), resp)
	}
	return davxml.Child{Name: davxml.DAV("multistatus"), Val: root}
}

// render 输出单个207响应
func (m *multiStatus) render(h *webdavHandler, c *gin.Context, prefixes map[string]string) error {
	s := &davxml.Serializer{Prefix: prefixes, Indent: h.c.prettyXML}
	root := m.tree()
	return h.writeEncoded(c, StatusMulti, xmlContentType, func(w io.Writer) error {
		return s.Write(w, root)
	})
}
