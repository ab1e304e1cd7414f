package davlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	locks map[string][]*Lock
}

func newMemStore() *memStore {
	return &memStore{locks: make(map[string][]*Lock)}
}

func (m *memStore) add(url string, l *Lock) {
	l.Root = url
	m.locks[url] = append(m.locks[url], l)
}

func (m *memStore) ListLocks(ctx context.Context, url string) ([]*Lock, error) {
	return m.locks[url], nil
}

func (m *memStore) DeleteLock(ctx context.Context, url string, token string) error {
	rs := make([]*Lock, 0, len(m.locks[url]))
	for _, l := range m.locks[url] {
		if l.Token != token {
			rs = append(rs, l)
		}
	}
	m.locks[url] = rs
	return nil
}

func newTestEngine(store IStore, now time.Time) *Engine {
	e := NewEngine(store, "/")
	e.now = func() time.Time { return now }
	return e
}

func TestEffectiveSets(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	store.add("/a/b/c", &Lock{Token: "t-res", Created: now, Timeout: time.Minute})
	store.add("/a/b", &Lock{Token: "t-zero", Created: now, Timeout: time.Minute, ZeroDepth: true})
	store.add("/a", &Lock{Token: "t-inf", Created: now, Timeout: time.Minute})
	// 非直接父级上的depth-0锁不可见
	store.add("/a", &Lock{Token: "t-far-zero", Created: now, Timeout: time.Minute, ZeroDepth: true})

	e := newTestEngine(store, now)
	set, err := e.Effective(context.Background(), "/a/b/c")
	require.NoError(t, err)
	require.Len(t, set.Resource, 1)
	require.Len(t, set.DepthZero, 1)
	require.Len(t, set.DepthInfinity, 1)
	assert.Equal(t, "t-res", set.Resource[0].Token)
	assert.Equal(t, "t-zero", set.DepthZero[0].Token)
	assert.Equal(t, "t-inf", set.DepthInfinity[0].Token)
	assert.Len(t, set.All(), 3)
}

func TestExpiredLockPurged(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	store.add("/f", &Lock{Token: "t1", Created: now.Add(-2 * time.Minute), Timeout: time.Minute})
	e := newTestEngine(store, now)
	set, err := e.Effective(context.Background(), "/f")
	require.NoError(t, err)
	assert.True(t, set.Empty())
	// 过期锁已被顺手删除
	assert.Len(t, store.locks["/f"], 0)
}

func TestInfiniteTimeoutNeverExpires(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	store.add("/f", &Lock{Token: "t1", Created: now.Add(-24 * time.Hour), Timeout: TimeoutInfinite})
	e := newTestEngine(store, now)
	set, err := e.Effective(context.Background(), "/f")
	require.NoError(t, err)
	assert.Len(t, set.Resource, 1)
}

func TestPermissionDecision(t *testing.T) {
	now := time.Now()
	ctx := context.Background()
	tests := []struct {
		name      string
		setup     func(store *memStore)
		method    string
		url       string
		principal string
		tokens    []string
		want      int
	}{
		{
			name:   "no locks full",
			setup:  func(store *memStore) {},
			method: "PUT", url: "/f", principal: "alice", want: PermFull,
		},
		{
			name: "owned token full",
			setup: func(store *memStore) {
				store.add("/f", &Lock{Token: "t1", Principal: "alice", Created: now, Timeout: time.Minute, Exclusive: true})
			},
			method: "PUT", url: "/f", principal: "alice", tokens: []string{"t1"}, want: PermFull,
		},
		{
			name: "token without principal denied",
			setup: func(store *memStore) {
				store.add("/f", &Lock{Token: "t1", Principal: "alice", Created: now, Timeout: time.Minute, Exclusive: true})
			},
			method: "PUT", url: "/f", principal: "bob", tokens: []string{"t1"}, want: PermDenied,
		},
		{
			name: "depth zero parent allows contents only",
			setup: func(store *memStore) {
				store.add("/c", &Lock{Token: "t1", Principal: "bob", Created: now, Timeout: time.Minute, Exclusive: true, ZeroDepth: true})
			},
			method: "PUT", url: "/c/f", principal: "alice", want: PermContents,
		},
		{
			name: "ancestor infinity denies",
			setup: func(store *memStore) {
				store.add("/c", &Lock{Token: "t1", Principal: "bob", Created: now, Timeout: time.Minute, Exclusive: true})
			},
			method: "DELETE", url: "/c/d/f", principal: "alice", want: PermDenied,
		},
		{
			name: "lock on shared resource allows shared",
			setup: func(store *memStore) {
				store.add("/f", &Lock{Token: "t1", Principal: "bob", Created: now, Timeout: time.Minute})
			},
			method: "LOCK", url: "/f", principal: "alice", want: PermShared,
		},
		{
			name: "lock on exclusive resource denied",
			setup: func(store *memStore) {
				store.add("/f", &Lock{Token: "t1", Principal: "bob", Created: now, Timeout: time.Minute, Exclusive: true})
			},
			method: "LOCK", url: "/f", principal: "alice", want: PermDenied,
		},
		{
			name: "lock under exclusive zero-depth parent contents",
			setup: func(store *memStore) {
				store.add("/c", &Lock{Token: "t1", Principal: "bob", Created: now, Timeout: time.Minute, Exclusive: true, ZeroDepth: true})
			},
			method: "LOCK", url: "/c/f", principal: "alice", want: PermContents,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			tc.setup(store)
			e := newTestEngine(store, now)
			code, _, err := e.Permission(ctx, tc.url, tc.method, tc.principal, tc.tokens)
			require.NoError(t, err)
			assert.Equal(t, tc.want, code)
		})
	}
}
