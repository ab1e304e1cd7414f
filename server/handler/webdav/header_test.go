package webdav

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/davgate/davlock"
)

func TestParseDepth(t *testing.T) {
	assert.Equal(t, depthZero, parseDepth("0"))
	assert.Equal(t, depthOne, parseDepth("1"))
	assert.Equal(t, depthInfinity, parseDepth("infinity"))
	assert.Equal(t, depthInvalid, parseDepth("2"))
	assert.Equal(t, depthInvalid, parseDepth("Infinity"))
}

func TestParseTimeout(t *testing.T) {
	def := 5 * time.Minute
	max := 30 * time.Minute
	assert.Equal(t, def, parseTimeout("", def, max))
	assert.Equal(t, 10*time.Second, parseTimeout("Second-10", def, max))
	// 超过上限时压到上限
	assert.Equal(t, max, parseTimeout("Second-7200", def, max))
	assert.Equal(t, max, parseTimeout("Infinite", def, max))
	assert.Equal(t, davlock.TimeoutInfinite, parseTimeout("Infinite", def, -1))
	// 取首个可接受项
	assert.Equal(t, 60*time.Second, parseTimeout("Second-abc, Second-60", def, max))
	assert.Equal(t, def, parseTimeout("garbage", def, max))
}

func TestChooseEncoding(t *testing.T) {
	tests := []struct {
		hdr  string
		want string
	}{
		{"", "identity"},
		{"gzip", "gzip"},
		{"br;q=0.9, gzip;q=0.5", "br"},
		{"deflate", "deflate"},
		{"x-gzip", "x-gzip"},
		{"unknown", "identity"},
		{"gzip;q=0", "identity"},
		{"*", "gzip"},
		{"gzip;q=0.1, *;q=0.9", "x-gzip"},
	}
	for _, tc := range tests {
		got, err := chooseEncoding(tc.hdr)
		require.NoError(t, err, tc.hdr)
		assert.Equal(t, tc.want, got, tc.hdr)
	}
	_, err := chooseEncoding("identity;q=0")
	assert.ErrorIs(t, err, errNoAcceptableEncoding)
}

func TestParseIfHeader(t *testing.T) {
	ih, ok := parseIfHeader("(<urn:uuid:1234>)")
	require.True(t, ok)
	require.Len(t, ih.lists, 1)
	assert.Equal(t, "urn:uuid:1234", ih.lists[0].conditions[0].Token)
	assert.Equal(t, []string{"urn:uuid:1234"}, ih.tokens())

	ih, ok = parseIfHeader(`<http://host/f> (<urn:uuid:a> [W/"etag1"]) (Not <urn:uuid:b>)`)
	require.True(t, ok)
	require.Len(t, ih.lists, 2)
	assert.Equal(t, "http://host/f", ih.lists[0].resourceTag)
	assert.Equal(t, "urn:uuid:a", ih.lists[0].conditions[0].Token)
	assert.Equal(t, `W/"etag1"`, ih.lists[0].conditions[1].ETag)
	assert.True(t, ih.lists[1].conditions[0].Not)
	// Not条件不计入持有token
	assert.Equal(t, []string{"urn:uuid:a"}, ih.tokens())

	_, ok = parseIfHeader("")
	assert.False(t, ok)
	_, ok = parseIfHeader("()")
	assert.False(t, ok)
	_, ok = parseIfHeader("bogus")
	assert.False(t, ok)
}
