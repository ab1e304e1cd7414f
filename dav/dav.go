package dav

import (
	"context"
	"errors"
	"io"

	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/davxml"
	"github.com/xxxsen/davgate/entity"
)

var (
	ErrNotFound = errors.New("dav: resource not found")
	ErrExist    = errors.New("dav: resource already exist")
	ErrNoParent = errors.New("dav: parent not found or not a collection")
	ErrNoSpace  = errors.New("dav: insufficient storage")
)

// PropPatch 单条属性变更, Remove为false时为设置
type PropPatch struct {
	Remove bool
	Name   davxml.Name
	Value  *davxml.Value
}

// IPropertyStore 死属性存储
type IPropertyStore interface {
	Get(ctx context.Context, name davxml.Name) (*davxml.Value, bool, error)
	List(ctx context.Context) ([]davxml.Child, error)
	// Patch 原子地应用一批变更, 任一失败则全部不生效
	Patch(ctx context.Context, patches []PropPatch) error
}

// ILockStore 单个资源上的锁存储
type ILockStore interface {
	List(ctx context.Context) ([]*davlock.Lock, error)
	ListByUser(ctx context.Context, user string) ([]*davlock.Lock, error)
	Save(ctx context.Context, l *davlock.Lock) error
	Delete(ctx context.Context, token string) error
}

// IResource url树上的单个节点, 核心层所有持久化均经由该接口
type IResource interface {
	CanonicalURL() string
	IsCollection() bool
	// Provisional lock-null占位资源, 在首次PUT/MKCOL后转正
	Provisional() bool
	Stats(ctx context.Context) (*entity.ResourceStat, error)
	Children(ctx context.Context) ([]IResource, error)
	ReadStream(ctx context.Context) (io.ReadCloser, error)
	WriteStream(ctx context.Context, r io.Reader, size int64) error
	MakeCollection(ctx context.Context) error
	Delete(ctx context.Context) error
	// CopyTo 复制当前节点(不含子级)到dst, 死属性随之复制
	CopyTo(ctx context.Context, dst string) (IResource, error)
	// MoveTo 整棵子树改名到dst
	MoveTo(ctx context.Context, dst string) (IResource, error)
	Properties() IPropertyStore
	Locks() ILockStore
}

// IAdapter 后端适配层入口
type IAdapter interface {
	GetResource(ctx context.Context, url string) (IResource, error)
	// CreatePlaceholder 为LOCK在不存在的url上创建lock-null占位资源
	CreatePlaceholder(ctx context.Context, url string) (IResource, error)
	IsAuthorized(ctx context.Context, url string, method string, user string) bool
}

type lockStoreBridge struct {
	a IAdapter
}

// NewLockStore 将适配层的按资源锁存储桥接为锁引擎的读写入口
func NewLockStore(a IAdapter) davlock.IStore {
	return &lockStoreBridge{a: a}
}

func (b *lockStoreBridge) ListLocks(ctx context.Context, url string) ([]*davlock.Lock, error) {
	res, err := b.a.GetResource(ctx, url)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return res.Locks().List(ctx)
}

func (b *lockStoreBridge) DeleteLock(ctx context.Context, url string, token string) error {
	res, err := b.a.GetResource(ctx, url)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return res.Locks().Delete(ctx, token)
}
