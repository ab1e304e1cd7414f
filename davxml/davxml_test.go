package davxml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameKey(t *testing.T) {
	assert.Equal(t, "resourcetype", DAV("resourcetype").Key())
	assert.Equal(t, "http://example.com/ns%%author", Name{Space: "http://example.com/ns", Local: "author"}.Key())
	assert.Equal(t, DAV("href"), ParseKey("href"))
	assert.Equal(t, Name{Space: "http://example.com/ns", Local: "author"}, ParseKey("http://example.com/ns%%author"))
}

func TestParseCanonical(t *testing.T) {
	raw := `<?xml version="1.0"?>
<D:propfind xmlns:D="DAV:" xmlns:Z="http://example.com/ns">
  <D:prop>
    <D:getetag/>
    <Z:author>mike</Z:author>
  </D:prop>
</D:propfind>`
	doc, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, DAV("propfind"), doc.Root.Name)
	assert.Equal(t, "D", doc.Prefix["DAV:"])
	assert.Equal(t, "Z", doc.Prefix["http://example.com/ns"])
	prop := doc.Root.Val.Find(DAV("prop"))
	require.NotNil(t, prop)
	require.Len(t, prop.Kids, 2)
	assert.Equal(t, DAV("getetag"), prop.Kids[0].Name)
	assert.Equal(t, Name{Space: "http://example.com/ns", Local: "author"}, prop.Kids[1].Name)
	assert.True(t, prop.Kids[1].Val.IsText)
	assert.Equal(t, "mike", prop.Kids[1].Val.Text)
}

func TestParseLangPropagation(t *testing.T) {
	raw := `<propertyupdate xmlns="DAV:" xml:lang="en">
  <set>
    <prop><displayname>hello</displayname></prop>
  </set>
</propertyupdate>`
	doc, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	set := doc.Root.Val.Find(DAV("set"))
	require.NotNil(t, set)
	name := set.Find(DAV("prop")).Find(DAV("displayname"))
	require.NotNil(t, name)
	assert.Equal(t, "en", name.Lang)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse(strings.NewReader("<a><b></a>"))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestSerializeRoundtrip(t *testing.T) {
	root := Elem()
	resp := Elem()
	resp.AddText(DAV("href"), "/a/b")
	prop := Elem()
	prop.Add(Name{Space: "http://example.com/ns", Local: "author"}, Text("mike"))
	resp.Add(DAV("prop"), prop)
	root.Add(DAV("response"), resp)

	s := &Serializer{Prefix: map[string]string{"http://example.com/ns": "Z"}}
	buf := &strings.Builder{}
	err := s.Write(buf, Child{Name: DAV("multistatus"), Val: root})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `<multistatus xmlns="DAV:" xmlns:Z="http://example.com/ns">`)
	assert.Contains(t, out, `<Z:author>mike</Z:author>`)

	doc, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, DAV("multistatus"), doc.Root.Name)
	got := doc.Root.Val.Find(DAV("response")).Find(DAV("prop"))
	require.NotNil(t, got)
	assert.Equal(t, "mike", got.Kids[0].Val.Text)
	assert.Equal(t, Name{Space: "http://example.com/ns", Local: "author"}, got.Kids[0].Name)
}

func TestSerializeDefaultNamespaceFallback(t *testing.T) {
	// 无前缀可用时在元素上直接声明默认命名空间
	root := Elem()
	root.Add(Name{Space: "urn:example:x", Local: "item"}, Text("v"))
	s := &Serializer{}
	buf := &strings.Builder{}
	err := s.Write(buf, Child{Name: DAV("prop"), Val: root})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `<item xmlns="urn:example:x">v</item>`)
}

func TestFragmentRoundtrip(t *testing.T) {
	v := Elem().Add(Name{Space: "urn:example:x", Local: "inner"}, Text("1"))
	frag, err := WriteFragment(Child{Name: Name{Space: "urn:example:x", Local: "outer"}, Val: v})
	require.NoError(t, err)
	c, err := ParseFragment(frag)
	require.NoError(t, err)
	assert.Equal(t, Name{Space: "urn:example:x", Local: "outer"}, c.Name)
	assert.Equal(t, "1", c.Val.Kids[0].Val.Text)
}

func TestEscape(t *testing.T) {
	buf := &strings.Builder{}
	s := &Serializer{}
	err := s.Write(buf, Child{Name: DAV("href"), Val: Text(`/a<b>&"c`)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "/a&lt;b&gt;&amp;")
}
