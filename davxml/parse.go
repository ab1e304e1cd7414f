package davxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrMalformed = errors.New("davxml: malformed xml body")
	ErrEmptyBody = errors.New("davxml: empty body")
)

// Document 解析后的请求文档, Prefix记录客户端使用的命名空间前缀(uri -> prefix),
// 序列化响应时复用, 保证客户端看到稳定的前缀
type Document struct {
	Root   Child
	Prefix map[string]string
}

type parseFrame struct {
	name   Name
	val    *Value
	text   strings.Builder
	lang   string
	inProp bool
}

// Parse 将DAV请求体解析为规整树:
//   - 元素名按(namespace, local)规整, DAV:命名空间的属性与DAV元素上的未限定属性丢弃命名空间
//   - xmlns声明本身转为普通属性项
//   - xml:lang沿树向下传播, prop子树内的节点记录生效语言
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	doc := &Document{Prefix: make(map[string]string)}
	var stack []*parseFrame
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			f := &parseFrame{name: Name{Space: t.Name.Space, Local: t.Name.Local}, val: &Value{}}
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				f.lang = top.lang
				f.inProp = top.inProp || (top.name.IsDAV() && top.name.Local == "prop")
			}
			for _, a := range t.Attr {
				parseAttr(doc, f, a)
			}
			stack = append(stack, f)
		case xml.EndElement:
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			closeFrame(f)
			if len(stack) == 0 {
				if doc.Root.Val != nil {
					return nil, fmt.Errorf("%w: multiple roots", ErrMalformed)
				}
				doc.Root = Child{Name: f.name, Val: f.val}
				continue
			}
			parent := stack[len(stack)-1]
			parent.val.Kids = append(parent.val.Kids, Child{Name: f.name, Val: f.val})
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed element", ErrMalformed)
	}
	if doc.Root.Val == nil {
		return nil, ErrEmptyBody
	}
	return doc, nil
}

func parseAttr(doc *Document, f *parseFrame, a xml.Attr) {
	switch {
	case a.Name.Space == "" && a.Name.Local == "xmlns":
		f.val.Attrs = append(f.val.Attrs, Attr{Name: Name{Local: "xmlns"}, Value: a.Value})
	case a.Name.Space == "xmlns":
		if _, ok := doc.Prefix[a.Value]; !ok {
			doc.Prefix[a.Value] = a.Name.Local
		}
		f.val.Attrs = append(f.val.Attrs, Attr{Name: Name{Local: "xmlns:" + a.Name.Local}, Value: a.Value})
	case (a.Name.Space == "xml" || a.Name.Space == "http://www.w3.org/XML/1998/namespace") && a.Name.Local == "lang":
		f.lang = a.Value
	case a.Name.Space == "" || a.Name.Space == NamespaceDAV:
		f.val.Attrs = append(f.val.Attrs, Attr{Name: Name{Local: a.Name.Local}, Value: a.Value})
	default:
		f.val.Attrs = append(f.val.Attrs, Attr{Name: Name{Space: a.Name.Space, Local: a.Name.Local}, Value: a.Value})
	}
}

func closeFrame(f *parseFrame) {
	text := f.text.String()
	if len(f.val.Kids) == 0 && strings.TrimSpace(text) != "" {
		f.val.IsText = true
		f.val.Text = text
	}
	if f.inProp {
		f.val.Lang = f.lang
	}
}

// ParseFragment 解析持久化的属性片段
func ParseFragment(s string) (Child, error) {
	doc, err := Parse(strings.NewReader(s))
	if err != nil {
		return Child{}, err
	}
	return doc.Root, nil
}
