package sqldav

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/idgen"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/davxml"
	"github.com/xxxsen/davgate/db"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	_ = idgen.Init(1)
	file := filepath.Join(t.TempDir(), "dav_test.db")
	require.NoError(t, db.InitDB(file))
	a, err := New(db.GetClient())
	require.NoError(t, err)
	return a
}

func TestEntryLifecycle(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	root, err := a.GetResource(ctx, "/")
	require.NoError(t, err)
	assert.True(t, root.IsCollection())

	_, err = a.GetResource(ctx, "/f.txt")
	assert.ErrorIs(t, err, dav.ErrNotFound)

	res, err := a.CreatePlaceholder(ctx, "/f.txt")
	require.NoError(t, err)
	assert.True(t, res.Provisional())
	require.NoError(t, res.WriteStream(ctx, bytes.NewReader(nil), 0))
	assert.False(t, res.Provisional())

	// 父级缺失
	_, err = a.CreatePlaceholder(ctx, "/no/such/f")
	assert.ErrorIs(t, err, dav.ErrNoParent)

	dir, err := a.CreatePlaceholder(ctx, "/c")
	require.NoError(t, err)
	require.NoError(t, dir.MakeCollection(ctx))
	assert.True(t, dir.IsCollection())

	kids, err := root.Children(ctx)
	require.NoError(t, err)
	assert.Len(t, kids, 2)

	require.NoError(t, res.Delete(ctx))
	_, err = a.GetResource(ctx, "/f.txt")
	assert.ErrorIs(t, err, dav.ErrNotFound)
}

func TestBlobReadWrite(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	res, err := a.CreatePlaceholder(ctx, "/data.bin")
	require.NoError(t, err)
	payload := []byte("hello dav")
	require.NoError(t, res.WriteStream(ctx, bytes.NewReader(payload), int64(len(payload))))

	st, err := res.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), st.Length)
	assert.NotEmpty(t, st.Etag)

	rd, err := res.ReadStream(ctx)
	require.NoError(t, err)
	defer rd.Close()
	got, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestMetaDocPropsAndLocks(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	res, err := a.CreatePlaceholder(ctx, "/f")
	require.NoError(t, err)

	name := davxml.Name{Space: "http://example.com/ns", Local: "tag"}
	require.NoError(t, res.Properties().Patch(ctx, []dav.PropPatch{
		{Name: name, Value: davxml.Text("v1")},
	}))
	v, ok, err := res.Properties().Get(ctx, name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v.Text)

	l := &davlock.Lock{
		Token:     davlock.NewToken(),
		Root:      "/f",
		Principal: "alice",
		Created:   time.Now(),
		Timeout:   time.Minute,
		Exclusive: true,
		ZeroDepth: true,
	}
	require.NoError(t, res.Locks().Save(ctx, l))
	locks, err := res.Locks().List(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, l.Token, locks[0].Token)
	assert.Equal(t, "/f", locks[0].Root)
	assert.True(t, locks[0].Exclusive)

	byUser, err := res.Locks().ListByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, byUser, 0)

	require.NoError(t, res.Locks().Delete(ctx, l.Token))
	locks, err = res.Locks().List(ctx)
	require.NoError(t, err)
	assert.Len(t, locks, 0)

	// 属性不随锁的删除而丢失
	_, ok, err = res.Properties().Get(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCopyMoveEntry(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	res, err := a.CreatePlaceholder(ctx, "/src")
	require.NoError(t, err)
	payload := []byte("content")
	require.NoError(t, res.WriteStream(ctx, bytes.NewReader(payload), int64(len(payload))))
	name := davxml.Name{Space: "http://example.com/ns", Local: "tag"}
	require.NoError(t, res.Properties().Patch(ctx, []dav.PropPatch{{Name: name, Value: davxml.Text("v")}}))

	cp, err := res.CopyTo(ctx, "/dst")
	require.NoError(t, err)
	rd, err := cp.ReadStream(ctx)
	require.NoError(t, err)
	got, _ := io.ReadAll(rd)
	_ = rd.Close()
	assert.Equal(t, payload, got)
	_, ok, err := cp.Properties().Get(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)

	mv, err := cp.MoveTo(ctx, "/dst2")
	require.NoError(t, err)
	_, err = a.GetResource(ctx, "/dst")
	assert.ErrorIs(t, err, dav.ErrNotFound)
	st, err := mv.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dst2", st.DisplayName)
}
