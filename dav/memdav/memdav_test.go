package memdav

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davxml"
)

func TestTreeLifecycle(t *testing.T) {
	ctx := context.Background()
	a := New()

	root, err := a.GetResource(ctx, "/")
	require.NoError(t, err)
	assert.True(t, root.IsCollection())

	_, err = a.GetResource(ctx, "/f")
	assert.ErrorIs(t, err, dav.ErrNotFound)

	res, err := a.CreatePlaceholder(ctx, "/f")
	require.NoError(t, err)
	assert.True(t, res.Provisional())
	require.NoError(t, res.WriteStream(ctx, bytes.NewReader([]byte("data")), 4))
	assert.False(t, res.Provisional())

	st, err := res.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Length)
	assert.Equal(t, "f", st.DisplayName)

	rd, err := res.ReadStream(ctx)
	require.NoError(t, err)
	got, err := io.ReadAll(rd)
	require.NoError(t, err)
	_ = rd.Close()
	assert.Equal(t, []byte("data"), got)

	_, err = a.CreatePlaceholder(ctx, "/f")
	assert.ErrorIs(t, err, dav.ErrExist)
	_, err = a.CreatePlaceholder(ctx, "/missing/child")
	assert.ErrorIs(t, err, dav.ErrNoParent)
}

func TestChildrenSorted(t *testing.T) {
	ctx := context.Background()
	a := New()
	dir, err := a.CreatePlaceholder(ctx, "/c")
	require.NoError(t, err)
	require.NoError(t, dir.MakeCollection(ctx))
	for _, name := range []string{"/c/b", "/c/a", "/c/z"} {
		res, err := a.CreatePlaceholder(ctx, name)
		require.NoError(t, err)
		require.NoError(t, res.WriteStream(ctx, bytes.NewReader(nil), 0))
	}
	kids, err := dir.Children(ctx)
	require.NoError(t, err)
	require.Len(t, kids, 3)
	assert.Equal(t, "/c/a", kids[0].CanonicalURL())
	assert.Equal(t, "/c/z", kids[2].CanonicalURL())
}

func TestMovePreservesProps(t *testing.T) {
	ctx := context.Background()
	a := New()
	res, err := a.CreatePlaceholder(ctx, "/src")
	require.NoError(t, err)
	require.NoError(t, res.WriteStream(ctx, bytes.NewReader([]byte("v")), 1))
	name := davxml.Name{Space: "urn:example:x", Local: "k"}
	require.NoError(t, res.Properties().Patch(ctx, []dav.PropPatch{{Name: name, Value: davxml.Text("1")}}))

	mv, err := res.MoveTo(ctx, "/dst")
	require.NoError(t, err)
	_, err = a.GetResource(ctx, "/src")
	assert.ErrorIs(t, err, dav.ErrNotFound)
	v, ok, err := mv.Properties().Get(ctx, name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v.Text)
}

func TestCopyDropsLocks(t *testing.T) {
	ctx := context.Background()
	a := New()
	res, err := a.CreatePlaceholder(ctx, "/src")
	require.NoError(t, err)
	require.NoError(t, res.WriteStream(ctx, bytes.NewReader([]byte("v")), 1))
	require.NoError(t, res.Locks().Save(ctx, newTestLock("alice")))

	cp, err := res.CopyTo(ctx, "/dst")
	require.NoError(t, err)
	locks, err := cp.Locks().List(ctx)
	require.NoError(t, err)
	assert.Len(t, locks, 0)
	// 源上的锁保留
	locks, err = res.Locks().List(ctx)
	require.NoError(t, err)
	assert.Len(t, locks, 1)
}
