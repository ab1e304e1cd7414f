package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "/", CleanPath(""))
	assert.Equal(t, "/", CleanPath("/"))
	assert.Equal(t, "/a/b", CleanPath("/a/b/"))
	assert.Equal(t, "/a/b", CleanPath("a/b"))
	assert.Equal(t, "/a", CleanPath("/a/./b/.."))
}

func TestParentPath(t *testing.T) {
	assert.Equal(t, "", ParentPath("/"))
	assert.Equal(t, "/", ParentPath("/a"))
	assert.Equal(t, "/a", ParentPath("/a/b"))
}

func TestIsSubPath(t *testing.T) {
	assert.True(t, IsSubPath("/a", "/a/b"))
	assert.True(t, IsSubPath("/", "/a"))
	assert.False(t, IsSubPath("/a", "/a"))
	assert.False(t, IsSubPath("/a", "/ab"))
	assert.False(t, IsSubPath("/a/b", "/a"))
}

func TestCollectionHref(t *testing.T) {
	assert.Equal(t, "/c/", CollectionHref("/c", true))
	assert.Equal(t, "/c", CollectionHref("/c", false))
	assert.Equal(t, "/", CollectionHref("/", true))
}

func TestWeakEtag(t *testing.T) {
	e1 := WeakEtag("/a", 1, 2)
	e2 := WeakEtag("/a", 1, 2)
	e3 := WeakEtag("/a", 1, 3)
	assert.Equal(t, e1, e2)
	assert.NotEqual(t, e1, e3)
	assert.Contains(t, e1, `W/"`)
}
