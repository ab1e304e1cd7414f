package webdav

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/davxml"
	"github.com/xxxsen/davgate/entity"
)

// 受保护的活属性, PROPPATCH不可修改
var livePropNames = map[string]struct{}{
	"creationdate":     {},
	"getcontentlength": {},
	"getcontenttype":   {},
	"getetag":          {},
	"getlastmodified":  {},
	"resourcetype":     {},
	"supportedlock":    {},
	"lockdiscovery":    {},
}

func isLiveProp(n davxml.Name) bool {
	if !n.IsDAV() {
		return false
	}
	_, ok := livePropNames[n.Local]
	return ok
}

// livePropValue 计算单个活属性, 对该资源无意义的属性返回false
func (h *webdavHandler) livePropValue(ctx context.Context, res dav.IResource, st *entity.ResourceStat, local string) (*davxml.Value, bool, error) {
	switch local {
	case "creationdate":
		return davxml.Text(time.UnixMilli(st.Ctime).UTC().Format(time.RFC3339)), true, nil
	case "getlastmodified":
		return davxml.Text(time.UnixMilli(st.Mtime).UTC().Format(http.TimeFormat)), true, nil
	case "getcontentlength":
		if st.IsDir {
			return nil, false, nil
		}
		return davxml.Text(strconv.FormatInt(st.Length, 10)), true, nil
	case "getcontenttype":
		if st.IsDir {
			return nil, false, nil
		}
		return davxml.Text(st.MediaType), true, nil
	case "getetag":
		if st.IsDir {
			return nil, false, nil
		}
		return davxml.Text(st.Etag), true, nil
	case "resourcetype":
		v := davxml.Elem()
		if st.IsDir {
			v.Add(davxml.DAV("collection"), davxml.Elem())
		}
		return v, true, nil
	case "supportedlock":
		return supportedLockValue(), true, nil
	case "lockdiscovery":
		set, err := h.engine.Effective(ctx, res.CanonicalURL())
		if err != nil {
			return nil, false, err
		}
		return h.lockDiscoveryValue(set.All()), true, nil
	}
	return nil, false, nil
}

func supportedLockValue() *davxml.Value {
	v := davxml.Elem()
	for _, scope := range []string{"exclusive", "shared"} {
		ent := davxml.Elem()
		ent.Add(davxml.DAV("lockscope"), davxml.Elem().Add(davxml.DAV(scope), davxml.Elem()))
		ent.Add(davxml.DAV("locktype"), davxml.Elem().Add(davxml.DAV("write"), davxml.Elem()))
		v.Add(davxml.DAV("lockentry"), ent)
	}
	return v
}

func timeoutString(d time.Duration) string {
	if d < 0 {
		return "Infinite"
	}
	return "Second-" + strconv.FormatInt(int64(d/time.Second), 10)
}

func depthString(zeroDepth bool) string {
	if zeroDepth {
		return "0"
	}
	return "infinity"
}

func (h *webdavHandler) activeLockValue(l *davlock.Lock) *davxml.Value {
	v := davxml.Elem()
	v.Add(davxml.DAV("locktype"), davxml.Elem().Add(davxml.DAV("write"), davxml.Elem()))
	scope := "shared"
	if l.Exclusive {
		scope = "exclusive"
	}
	v.Add(davxml.DAV("lockscope"), davxml.Elem().Add(davxml.DAV(scope), davxml.Elem()))
	v.AddText(davxml.DAV("depth"), depthString(l.ZeroDepth))
	if l.OwnerXML != "" {
		if c, err := davxml.ParseFragment(l.OwnerXML); err == nil {
			v.Add(davxml.DAV("owner"), c.Val)
		}
	}
	v.AddText(davxml.DAV("timeout"), timeoutString(l.Timeout))
	v.Add(davxml.DAV("locktoken"), davxml.Elem().AddText(davxml.DAV("href"), l.Token))
	v.Add(davxml.DAV("lockroot"), davxml.Elem().AddText(davxml.DAV("href"), escapeHref(h.c.prefix+l.Root)))
	return v
}

func (h *webdavHandler) lockDiscoveryValue(locks []*davlock.Lock) *davxml.Value {
	v := davxml.Elem()
	for _, l := range locks {
		v.Add(davxml.DAV("activelock"), h.activeLockValue(l))
	}
	return v
}
