package webdav

import (
	"context"
	"errors"
	"strings"

	"github.com/xxxsen/davgate/dav"
)

// If头的tagged-list文法, 见RFC4918 10.4:
//
//	If = "If" ":" ( 1*No-tag-list | 1*Tagged-list )
//	No-tag-list = List
//	Tagged-list = Resource-Tag 1*List
//	List = "(" 1*Condition ")"
//	Condition = ["Not"] (State-token | "[" entity-tag "]")
type ifHeader struct {
	lists []ifList
}

type ifList struct {
	resourceTag string
	conditions  []ifCondition
}

type ifCondition struct {
	Not   bool
	Token string
	ETag  string
}

// tokens 展平提取全部锁token, 作为锁引擎的持有token输入
func (h *ifHeader) tokens() []string {
	var rs []string
	for _, l := range h.lists {
		for _, cond := range l.conditions {
			if cond.Token != "" && !cond.Not {
				rs = append(rs, cond.Token)
			}
		}
	}
	return rs
}

func parseIfHeader(s string) (*ifHeader, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return &ifHeader{}, false
	}
	h := &ifHeader{}
	curTag := ""
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			break
		}
		switch s[0] {
		case '<':
			tag, rest, ok := consumeCoded(s)
			if !ok {
				return nil, false
			}
			curTag = tag
			s = rest
		case '(':
			list, rest, ok := consumeList(s)
			if !ok {
				return nil, false
			}
			list.resourceTag = curTag
			h.lists = append(h.lists, list)
			s = rest
		default:
			return nil, false
		}
	}
	if len(h.lists) == 0 {
		return nil, false
	}
	return h, true
}

// consumeCoded 消费一个<...>包裹的Coded-URL
func consumeCoded(s string) (string, string, bool) {
	idx := strings.IndexByte(s, '>')
	if idx < 0 {
		return "", "", false
	}
	return s[1:idx], s[idx+1:], true
}

func consumeList(s string) (ifList, string, bool) {
	list := ifList{}
	s = s[1:]
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return list, "", false
		}
		switch {
		case s[0] == ')':
			if len(list.conditions) == 0 {
				return list, "", false
			}
			return list, s[1:], true
		case strings.HasPrefix(s, "Not"):
			rest := strings.TrimLeft(s[3:], " \t")
			cond, next, ok := consumeCondition(rest)
			if !ok {
				return list, "", false
			}
			cond.Not = true
			list.conditions = append(list.conditions, cond)
			s = next
		default:
			cond, next, ok := consumeCondition(s)
			if !ok {
				return list, "", false
			}
			list.conditions = append(list.conditions, cond)
			s = next
		}
	}
}

func consumeCondition(s string) (ifCondition, string, bool) {
	if s == "" {
		return ifCondition{}, "", false
	}
	switch s[0] {
	case '<':
		token, rest, ok := consumeCoded(s)
		if !ok {
			return ifCondition{}, "", false
		}
		return ifCondition{Token: token}, rest, true
	case '[':
		idx := strings.IndexByte(s, ']')
		if idx < 0 {
			return ifCondition{}, "", false
		}
		return ifCondition{ETag: strings.TrimSpace(s[1:idx])}, s[idx+1:], true
	}
	return ifCondition{}, "", false
}

// evaluateIf 逐个list求值(各list间为或), 条件全部成立的list存在则通过.
// token条件要求tagged资源上存在对应的活动锁, etag条件要求与资源当前etag一致
func (h *webdavHandler) evaluateIf(ctx context.Context, ih *ifHeader, defaultURL string) (bool, error) {
	for _, list := range ih.lists {
		target := defaultURL
		if list.resourceTag != "" {
			target = h.resourceTagToURL(list.resourceTag)
		}
		ok, err := h.evaluateList(ctx, list, target)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (h *webdavHandler) evaluateList(ctx context.Context, list ifList, url string) (bool, error) {
	for _, cond := range list.conditions {
		ok, err := h.evaluateCondition(ctx, cond, url)
		if err != nil {
			return false, err
		}
		if ok == cond.Not {
			return false, nil
		}
	}
	return true, nil
}

func (h *webdavHandler) evaluateCondition(ctx context.Context, cond ifCondition, url string) (bool, error) {
	if cond.Token != "" {
		st, err := h.engine.Effective(ctx, url)
		if err != nil {
			return false, err
		}
		for _, l := range st.All() {
			if l.Token == cond.Token {
				return true, nil
			}
		}
		return false, nil
	}
	res, err := h.adapter.GetResource(ctx, url)
	if err != nil {
		if errors.Is(err, dav.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	stat, err := res.Stats(ctx)
	if err != nil {
		return false, err
	}
	return stat.Etag == cond.ETag, nil
}

// resourceTagToURL 把If头中的绝对URI转换为规范路径
func (h *webdavHandler) resourceTagToURL(tag string) string {
	if idx := strings.Index(tag, "://"); idx >= 0 {
		if slash := strings.IndexByte(tag[idx+3:], '/'); slash >= 0 {
			tag = tag[idx+3+slash:]
		} else {
			tag = "/"
		}
	}
	if h.c.prefix != "" {
		tag = strings.TrimPrefix(tag, h.c.prefix)
	}
	return tag
}

// checkIfConditions If头存在时强制求值, 不满足返回412
func (h *webdavHandler) checkIfConditions(ctx context.Context, hdr string, url string) (bool, error) {
	if hdr == "" {
		return true, nil
	}
	ih, ok := parseIfHeader(hdr)
	if !ok {
		return false, errBadIfHeader
	}
	return h.evaluateIf(ctx, ih, url)
}
