package davxml

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Serializer 将规整树序列化为XML. Prefix为客户端偏好的前缀表(uri -> prefix),
// Indent开启时输出缩进格式, 否则单行输出
type Serializer struct {
	Prefix map[string]string
	Indent bool
}

type nsScope struct {
	def  string            // 当前默认命名空间
	bind map[string]string // uri -> prefix
	used map[string]string // prefix -> uri
}

func (s *nsScope) clone() *nsScope {
	ns := &nsScope{
		def:  s.def,
		bind: make(map[string]string, len(s.bind)+1),
		used: make(map[string]string, len(s.used)+1),
	}
	for k, v := range s.bind {
		ns.bind[k] = v
	}
	for k, v := range s.used {
		ns.used[k] = v
	}
	return ns
}

func (s *Serializer) Write(w io.Writer, root Child) error {
	bw := bufio.NewWriter(w)
	if _, err := io.WriteString(bw, xml.Header); err != nil {
		return err
	}
	sc := &nsScope{bind: make(map[string]string), used: make(map[string]string)}
	if err := s.writeElem(bw, root.Name, root.Val, sc, 0, true); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFragment 序列化单个属性片段, 无xml头, 单行输出
func WriteFragment(c Child) (string, error) {
	buf := &bytes.Buffer{}
	s := &Serializer{}
	sc := &nsScope{bind: make(map[string]string), used: make(map[string]string)}
	if err := s.writeElem(buf, c.Name, c.Val, sc, 0, true); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Serializer) writeElem(w io.Writer, name Name, v *Value, parent *nsScope, depth int, isRoot bool) error {
	sc := parent.clone()
	var decls []Attr
	var plain []Attr
	ownBind := make(map[string]string)
	if v != nil {
		for _, a := range v.Attrs {
			switch {
			case a.Name.Space == "" && a.Name.Local == "xmlns":
				if sc.def != a.Value {
					sc.def = a.Value
					decls = append(decls, a)
				}
			case a.Name.Space == "" && strings.HasPrefix(a.Name.Local, "xmlns:"):
				p := strings.TrimPrefix(a.Name.Local, "xmlns:")
				ownBind[a.Value] = p
				if sc.used[p] != a.Value {
					sc.bind[a.Value] = p
					sc.used[p] = a.Value
					decls = append(decls, a)
				}
			default:
				plain = append(plain, a)
			}
		}
	}
	ns := name.Space
	if ns == "" {
		ns = NamespaceDAV
	}
	if isRoot && sc.def == "" && ns == NamespaceDAV {
		sc.def = NamespaceDAV
		decls = append([]Attr{{Name: Name{Local: "xmlns"}, Value: NamespaceDAV}}, decls...)
	}
	if isRoot {
		// 客户端声明过的前缀统一在根上重新声明, 保证响应前缀稳定
		uris := make([]string, 0, len(s.Prefix))
		for uri := range s.Prefix {
			uris = append(uris, uri)
		}
		sort.Strings(uris)
		for _, uri := range uris {
			p := s.Prefix[uri]
			if uri == NamespaceDAV || p == "" || sc.used[p] != "" || sc.bind[uri] != "" {
				continue
			}
			sc.bind[uri] = p
			sc.used[p] = uri
			decls = append(decls, Attr{Name: Name{Local: "xmlns:" + p}, Value: uri})
		}
	}
	tag := name.Local
	pref, hasPref := "", false
	if p, ok := s.Prefix[ns]; ok && p != "" {
		pref, hasPref = p, true
	}
	switch {
	case ns == sc.def:
		// 默认命名空间, 无前缀
	case ownBind[ns] != "":
		tag = ownBind[ns] + ":" + name.Local
	case hasPref && sc.bind[ns] == pref:
		tag = pref + ":" + name.Local
	case hasPref && sc.used[pref] == "":
		sc.bind[ns] = pref
		sc.used[pref] = ns
		decls = append(decls, Attr{Name: Name{Local: "xmlns:" + pref}, Value: ns})
		tag = pref + ":" + name.Local
	case sc.bind[ns] != "":
		tag = sc.bind[ns] + ":" + name.Local
	default:
		sc.def = ns
		decls = append(decls, Attr{Name: Name{Local: "xmlns"}, Value: ns})
	}

	if s.Indent && depth > 0 {
		if _, err := io.WriteString(w, "\n"+strings.Repeat("  ", depth)); err != nil {
			return err
		}
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('<')
	buf.WriteString(tag)
	for _, d := range decls {
		fmt.Fprintf(buf, " %s=\"%s\"", d.Name.Local, escapeAttr(d.Value))
	}
	for _, a := range plain {
		an := a.Name.Local
		if a.Name.Space != "" {
			p := sc.bind[a.Name.Space]
			if p == "" {
				p = s.attrPrefix(sc, a.Name.Space)
				fmt.Fprintf(buf, " xmlns:%s=\"%s\"", p, escapeAttr(a.Name.Space))
			}
			an = p + ":" + a.Name.Local
		}
		fmt.Fprintf(buf, " %s=\"%s\"", an, escapeAttr(a.Value))
	}
	if v.Empty() || (!v.IsText && len(v.Kids) == 0) {
		buf.WriteString("/>")
		_, err := w.Write(buf.Bytes())
		return err
	}
	if v.IsText {
		buf.WriteByte('>')
		buf.WriteString(escapeText(v.Text))
		buf.WriteString("</" + tag + ">")
		_, err := w.Write(buf.Bytes())
		return err
	}
	buf.WriteByte('>')
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	for _, k := range v.Kids {
		if err := s.writeElem(w, k.Name, k.Val, sc, depth+1, false); err != nil {
			return err
		}
	}
	if s.Indent {
		if _, err := io.WriteString(w, "\n"+strings.Repeat("  ", depth)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</"+tag+">")
	return err
}

func (s *Serializer) attrPrefix(sc *nsScope, uri string) string {
	if p, ok := s.Prefix[uri]; ok && p != "" && sc.used[p] == "" {
		sc.bind[uri] = p
		sc.used[p] = uri
		return p
	}
	for i := 1; ; i++ {
		p := fmt.Sprintf("ns%d", i)
		if sc.used[p] == "" {
			sc.bind[uri] = p
			sc.used[p] = uri
			return p
		}
	}
}

func escapeText(s string) string {
	buf := &bytes.Buffer{}
	_ = xml.EscapeText(buf, []byte(s))
	return buf.String()
}

func escapeAttr(s string) string {
	return escapeText(s)
}
