// Package memdav 纯内存的适配层实现, 用于测试与轻量部署,
// 树结构与锁/属性存储均由单个读写锁保护
package memdav

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/davxml"
	"github.com/xxxsen/davgate/entity"
	"github.com/xxxsen/davgate/utils"
)

type node struct {
	name        string
	dir         bool
	provisional bool
	data        []byte
	ctime       int64
	mtime       int64
	kids        map[string]*node
	props       map[string]davxml.Child
	locks       map[string]*davlock.Lock
}

func newNode(name string, dir bool) *node {
	now := time.Now().UnixMilli()
	n := &node{
		name:  name,
		dir:   dir,
		ctime: now,
		mtime: now,
		props: make(map[string]davxml.Child),
		locks: make(map[string]*davlock.Lock),
	}
	if dir {
		n.kids = make(map[string]*node)
	}
	return n
}

func (n *node) clone() *node {
	nn := newNode(n.name, n.dir)
	nn.provisional = n.provisional
	nn.ctime = n.ctime
	nn.mtime = n.mtime
	nn.data = append([]byte(nil), n.data...)
	for k, v := range n.props {
		nn.props[k] = davxml.Child{Name: v.Name, Val: v.Val.Clone()}
	}
	return nn
}

type Adapter struct {
	mu   sync.RWMutex
	root *node
	// Authorize 为nil时放行所有请求
	Authorize func(url string, method string, user string) bool
}

func New() *Adapter {
	return &Adapter{root: newNode("/", true)}
}

func (a *Adapter) resolve(url string) (*node, bool) {
	url = utils.CleanPath(url)
	cur := a.root
	if url == "/" {
		return cur, true
	}
	for _, seg := range strings.Split(strings.TrimPrefix(url, "/"), "/") {
		if !cur.dir {
			return nil, false
		}
		next, ok := cur.kids[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (a *Adapter) resolveParent(url string) (*node, string, bool) {
	url = utils.CleanPath(url)
	if url == "/" {
		return nil, "", false
	}
	parent, ok := a.resolve(utils.ParentPath(url))
	if !ok || !parent.dir {
		return nil, "", false
	}
	return parent, utils.BaseName(url), true
}

func (a *Adapter) GetResource(ctx context.Context, url string) (dav.IResource, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.resolve(url); !ok {
		return nil, dav.ErrNotFound
	}
	return &resource{a: a, url: utils.CleanPath(url)}, nil
}

func (a *Adapter) CreatePlaceholder(ctx context.Context, url string) (dav.IResource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.resolve(url); ok {
		return nil, dav.ErrExist
	}
	parent, name, ok := a.resolveParent(url)
	if !ok {
		return nil, dav.ErrNoParent
	}
	n := newNode(name, false)
	n.provisional = true
	parent.kids[name] = n
	return &resource{a: a, url: utils.CleanPath(url)}, nil
}

func (a *Adapter) IsAuthorized(ctx context.Context, url string, method string, user string) bool {
	if a.Authorize == nil {
		return true
	}
	return a.Authorize(url, method, user)
}

type resource struct {
	a   *Adapter
	url string
}

func (r *resource) node() (*node, bool) {
	return r.a.resolve(r.url)
}

func (r *resource) CanonicalURL() string {
	return r.url
}

func (r *resource) IsCollection() bool {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()
	n, ok := r.node()
	return ok && n.dir
}

func (r *resource) Provisional() bool {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()
	n, ok := r.node()
	return ok && n.provisional
}

func (r *resource) Stats(ctx context.Context) (*entity.ResourceStat, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()
	n, ok := r.node()
	if !ok {
		return nil, dav.ErrNotFound
	}
	st := &entity.ResourceStat{
		DisplayName: n.name,
		IsDir:       n.dir,
		Ctime:       n.ctime,
		Mtime:       n.mtime,
	}
	if !n.dir {
		st.Length = int64(len(n.data))
		st.MediaType = utils.DetermineMimeType(n.name)
		st.Etag = utils.WeakEtag(r.url, st.Length, n.mtime)
	}
	return st, nil
}

func (r *resource) Children(ctx context.Context) ([]dav.IResource, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()
	n, ok := r.node()
	if !ok {
		return nil, dav.ErrNotFound
	}
	if !n.dir {
		return nil, nil
	}
	names := make([]string, 0, len(n.kids))
	for name := range n.kids {
		names = append(names, name)
	}
	sort.Strings(names)
	rs := make([]dav.IResource, 0, len(names))
	for _, name := range names {
		rs = append(rs, &resource{a: r.a, url: utils.JoinPath(r.url, name)})
	}
	return rs, nil
}

func (r *resource) ReadStream(ctx context.Context) (io.ReadCloser, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()
	n, ok := r.node()
	if !ok {
		return nil, dav.ErrNotFound
	}
	return utils.ReadSeekNopCloser(bytes.NewReader(append([]byte(nil), n.data...))), nil
}

func (r *resource) WriteStream(ctx context.Context, rd io.Reader, size int64) error {
	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	r.a.mu.Lock()
	defer r.a.mu.Unlock()
	n, ok := r.node()
	if !ok {
		return dav.ErrNotFound
	}
	n.data = data
	n.mtime = time.Now().UnixMilli()
	n.provisional = false
	return nil
}

func (r *resource) MakeCollection(ctx context.Context) error {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()
	n, ok := r.node()
	if !ok {
		return dav.ErrNotFound
	}
	if n.dir {
		return nil
	}
	n.dir = true
	n.kids = make(map[string]*node)
	n.data = nil
	n.provisional = false
	n.mtime = time.Now().UnixMilli()
	return nil
}

func (r *resource) Delete(ctx context.Context) error {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()
	parent, name, ok := r.a.resolveParent(r.url)
	if !ok {
		return dav.ErrNotFound
	}
	if _, ok := parent.kids[name]; !ok {
		return dav.ErrNotFound
	}
	delete(parent.kids, name)
	parent.mtime = time.Now().UnixMilli()
	return nil
}

func (r *resource) CopyTo(ctx context.Context, dst string) (dav.IResource, error) {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()
	n, ok := r.node()
	if !ok {
		return nil, dav.ErrNotFound
	}
	parent, name, ok := r.a.resolveParent(dst)
	if !ok {
		return nil, dav.ErrNoParent
	}
	nn := n.clone()
	nn.name = name
	parent.kids[name] = nn
	parent.mtime = time.Now().UnixMilli()
	return &resource{a: r.a, url: utils.CleanPath(dst)}, nil
}

func (r *resource) MoveTo(ctx context.Context, dst string) (dav.IResource, error) {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()
	srcParent, srcName, ok := r.a.resolveParent(r.url)
	if !ok {
		return nil, dav.ErrNotFound
	}
	n, ok := srcParent.kids[srcName]
	if !ok {
		return nil, dav.ErrNotFound
	}
	dstParent, dstName, ok := r.a.resolveParent(dst)
	if !ok {
		return nil, dav.ErrNoParent
	}
	delete(srcParent.kids, srcName)
	n.name = dstName
	dstParent.kids[dstName] = n
	now := time.Now().UnixMilli()
	srcParent.mtime = now
	dstParent.mtime = now
	rewriteLockRoots(n, utils.CleanPath(dst))
	return &resource{a: r.a, url: utils.CleanPath(dst)}, nil
}

// rewriteLockRoots 子树整体改名后修正锁记录上的资源路径
func rewriteLockRoots(n *node, url string) {
	for _, l := range n.locks {
		l.Root = url
	}
	for name, kid := range n.kids {
		rewriteLockRoots(kid, utils.JoinPath(url, name))
	}
}

func (r *resource) Properties() dav.IPropertyStore {
	return &propStore{r: r}
}

func (r *resource) Locks() dav.ILockStore {
	return &lockStore{r: r}
}

type propStore struct {
	r *resource
}

func (p *propStore) Get(ctx context.Context, name davxml.Name) (*davxml.Value, bool, error) {
	p.r.a.mu.RLock()
	defer p.r.a.mu.RUnlock()
	n, ok := p.r.node()
	if !ok {
		return nil, false, dav.ErrNotFound
	}
	c, ok := n.props[name.Key()]
	if !ok {
		return nil, false, nil
	}
	return c.Val.Clone(), true, nil
}

func (p *propStore) List(ctx context.Context) ([]davxml.Child, error) {
	p.r.a.mu.RLock()
	defer p.r.a.mu.RUnlock()
	n, ok := p.r.node()
	if !ok {
		return nil, dav.ErrNotFound
	}
	keys := make([]string, 0, len(n.props))
	for k := range n.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rs := make([]davxml.Child, 0, len(keys))
	for _, k := range keys {
		c := n.props[k]
		rs = append(rs, davxml.Child{Name: c.Name, Val: c.Val.Clone()})
	}
	return rs, nil
}

func (p *propStore) Patch(ctx context.Context, patches []dav.PropPatch) error {
	p.r.a.mu.Lock()
	defer p.r.a.mu.Unlock()
	n, ok := p.r.node()
	if !ok {
		return dav.ErrNotFound
	}
	for _, pt := range patches {
		if pt.Remove {
			delete(n.props, pt.Name.Key())
			continue
		}
		n.props[pt.Name.Key()] = davxml.Child{Name: pt.Name, Val: pt.Value.Clone()}
	}
	return nil
}

type lockStore struct {
	r *resource
}

func (s *lockStore) List(ctx context.Context) ([]*davlock.Lock, error) {
	s.r.a.mu.RLock()
	defer s.r.a.mu.RUnlock()
	n, ok := s.r.node()
	if !ok {
		return nil, dav.ErrNotFound
	}
	rs := make([]*davlock.Lock, 0, len(n.locks))
	for _, l := range n.locks {
		cp := *l
		rs = append(rs, &cp)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Token < rs[j].Token })
	return rs, nil
}

func (s *lockStore) ListByUser(ctx context.Context, user string) ([]*davlock.Lock, error) {
	locks, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	rs := make([]*davlock.Lock, 0, len(locks))
	for _, l := range locks {
		if l.Principal == user {
			rs = append(rs, l)
		}
	}
	return rs, nil
}

func (s *lockStore) Save(ctx context.Context, l *davlock.Lock) error {
	s.r.a.mu.Lock()
	defer s.r.a.mu.Unlock()
	n, ok := s.r.node()
	if !ok {
		return dav.ErrNotFound
	}
	cp := *l
	n.locks[l.Token] = &cp
	return nil
}

func (s *lockStore) Delete(ctx context.Context, token string) error {
	s.r.a.mu.Lock()
	defer s.r.a.mu.Unlock()
	n, ok := s.r.node()
	if !ok {
		return dav.ErrNotFound
	}
	delete(n.locks, token)
	return nil
}
