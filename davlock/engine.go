package davlock

import (
	"context"
	"time"

	"github.com/xxxsen/davgate/utils"
)

// 权限判定结果
const (
	PermDenied   = 0 // 拒绝任何修改
	PermContents = 1 // 允许修改内容, 不允许修改命名空间映射
	PermFull     = 2 // 允许
	PermShared   = 3 // 允许追加共享锁
)

// IStore 锁的读写入口, 由适配层提供
type IStore interface {
	ListLocks(ctx context.Context, url string) ([]*Lock, error)
	DeleteLock(ctx context.Context, url string, token string) error
}

// Set 目标资源可见的锁集合, 按来源分组:
// 资源自身的锁/直接父级的depth-0锁/任意祖先的depth-infinity锁
type Set struct {
	Resource      []*Lock
	DepthZero     []*Lock
	DepthInfinity []*Lock
}

func (s *Set) All() []*Lock {
	rs := make([]*Lock, 0, len(s.Resource)+len(s.DepthZero)+len(s.DepthInfinity))
	rs = append(rs, s.Resource...)
	rs = append(rs, s.DepthZero...)
	rs = append(rs, s.DepthInfinity...)
	return rs
}

func (s *Set) Empty() bool {
	return len(s.Resource) == 0 && len(s.DepthZero) == 0 && len(s.DepthInfinity) == 0
}

// Roots 返回集合中锁所在的资源路径, 用于构造no-conflicting-lock响应
func (s *Set) Roots() []string {
	seen := make(map[string]struct{})
	rs := make([]string, 0, 4)
	for _, l := range s.All() {
		if _, ok := seen[l.Root]; ok {
			continue
		}
		seen[l.Root] = struct{}{}
		rs = append(rs, l.Root)
	}
	return rs
}

type Engine struct {
	store IStore
	base  string
	now   func() time.Time
}

func NewEngine(store IStore, base string) *Engine {
	return &Engine{store: store, base: utils.CleanPath(base), now: time.Now}
}

// purge 过滤过期锁, 过期项尽力删除, 删除失败不影响结果
func (e *Engine) purge(ctx context.Context, url string, locks []*Lock) []*Lock {
	now := e.now()
	rs := make([]*Lock, 0, len(locks))
	for _, l := range locks {
		if l.Expired(now) {
			_ = e.store.DeleteLock(ctx, url, l.Token)
			continue
		}
		rs = append(rs, l)
	}
	return rs
}

// Effective 计算目标资源可见的锁集合, 自底向上迭代遍历祖先直到base
func (e *Engine) Effective(ctx context.Context, url string) (*Set, error) {
	url = utils.CleanPath(url)
	st := &Set{}
	locks, err := e.store.ListLocks(ctx, url)
	if err != nil {
		return nil, err
	}
	st.Resource = e.purge(ctx, url, locks)
	firstParent := true
	for cur := url; cur != e.base && cur != ""; {
		parent := utils.ParentPath(cur)
		if parent == "" || parent == cur {
			break
		}
		cur = parent
		locks, err := e.store.ListLocks(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, l := range e.purge(ctx, cur, locks) {
			if !l.ZeroDepth {
				st.DepthInfinity = append(st.DepthInfinity, l)
				continue
			}
			if firstParent {
				st.DepthZero = append(st.DepthZero, l)
			}
		}
		firstParent = false
	}
	return st, nil
}

// Permission 给出请求对目标资源的修改权限判定
func (e *Engine) Permission(ctx context.Context, url string, method string, principal string, tokens []string) (int, *Set, error) {
	st, err := e.Effective(ctx, url)
	if err != nil {
		return PermDenied, nil, err
	}
	return e.decide(st, method, principal, tokens), st, nil
}

func (e *Engine) decide(st *Set, method string, principal string, tokens []string) int {
	if st.Empty() {
		return PermFull
	}
	for _, l := range st.All() {
		if l.OwnedBy(principal, tokens) {
			return PermFull
		}
	}
	if method != "LOCK" {
		if len(st.Resource) > 0 || len(st.DepthInfinity) > 0 {
			return PermDenied
		}
		if len(st.DepthZero) > 0 {
			return PermContents
		}
		return PermDenied
	}
	for _, l := range st.Resource {
		if l.Exclusive {
			return PermDenied
		}
	}
	for _, l := range st.DepthInfinity {
		if l.Exclusive {
			return PermDenied
		}
	}
	for _, l := range st.DepthZero {
		if l.Exclusive {
			return PermContents
		}
	}
	return PermShared
}
