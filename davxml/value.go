package davxml

// Attr 规整后的属性项, DAV:命名空间及无命名空间的属性Space为空
type Attr struct {
	Name  Name
	Value string
}

// Child 有序子元素项
type Child struct {
	Name Name
	Val  *Value
}

// Value 规整后的XML节点: 文本叶子或元素树
type Value struct {
	IsText bool
	Text   string
	Attrs  []Attr
	Kids   []Child
	// Lang 继承自祖先的xml:lang, 仅在prop子树上有意义
	Lang string
}

func Text(s string) *Value {
	return &Value{IsText: true, Text: s}
}

func Elem() *Value {
	return &Value{}
}

func (v *Value) Add(n Name, c *Value) *Value {
	v.Kids = append(v.Kids, Child{Name: n, Val: c})
	return v
}

func (v *Value) AddText(n Name, s string) *Value {
	return v.Add(n, Text(s))
}

func (v *Value) SetAttr(n Name, val string) *Value {
	for i := range v.Attrs {
		if v.Attrs[i].Name == n {
			v.Attrs[i].Value = val
			return v
		}
	}
	v.Attrs = append(v.Attrs, Attr{Name: n, Value: val})
	return v
}

// Find 返回首个命中的子元素, 不存在时返回nil
func (v *Value) Find(n Name) *Value {
	if v == nil {
		return nil
	}
	for _, k := range v.Kids {
		if k.Name == n {
			return k.Val
		}
	}
	return nil
}

func (v *Value) Has(n Name) bool {
	return v.Find(n) != nil
}

func (v *Value) Empty() bool {
	return v == nil || (!v.IsText && len(v.Kids) == 0 && len(v.Attrs) == 0)
}

func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	nv := &Value{
		IsText: v.IsText,
		Text:   v.Text,
		Lang:   v.Lang,
	}
	if len(v.Attrs) > 0 {
		nv.Attrs = make([]Attr, len(v.Attrs))
		copy(nv.Attrs, v.Attrs)
	}
	for _, k := range v.Kids {
		nv.Kids = append(nv.Kids, Child{Name: k.Name, Val: k.Val.Clone()})
	}
	return nv
}
