package sqldav

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/davxml"
	"github.com/xxxsen/davgate/entity"
)

type propStore struct {
	r *resource
}

func (p *propStore) Get(ctx context.Context, name davxml.Name) (*davxml.Value, bool, error) {
	ent, err := p.r.entry(ctx)
	if err != nil {
		return nil, false, err
	}
	doc, err := p.r.a.readMetaDoc(ctx, ent.EntryId, true)
	if err != nil {
		return nil, false, err
	}
	rec, ok := doc.Props[name.Key()]
	if !ok {
		return nil, false, nil
	}
	v, err := decodePropDoc(rec)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (p *propStore) List(ctx context.Context) ([]davxml.Child, error) {
	ent, err := p.r.entry(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := p.r.a.readMetaDoc(ctx, ent.EntryId, true)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc.Props))
	for k := range doc.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rs := make([]davxml.Child, 0, len(keys))
	for _, k := range keys {
		v, err := decodePropDoc(doc.Props[k])
		if err != nil {
			return nil, err
		}
		rs = append(rs, davxml.Child{Name: davxml.ParseKey(k), Val: v})
	}
	return rs, nil
}

func (p *propStore) Patch(ctx context.Context, patches []dav.PropPatch) error {
	ent, err := p.r.entry(ctx)
	if err != nil {
		return err
	}
	return p.r.a.mutateMetaDoc(ctx, ent.EntryId, func(doc *entity.MetaDoc) error {
		for _, pt := range patches {
			if pt.Remove {
				delete(doc.Props, pt.Name.Key())
				continue
			}
			rec, err := encodePropDoc(pt.Name, pt.Value)
			if err != nil {
				return err
			}
			if doc.Props == nil {
				doc.Props = make(map[string]entity.PropDoc)
			}
			doc.Props[pt.Name.Key()] = rec
		}
		return nil
	})
}

func encodePropDoc(name davxml.Name, v *davxml.Value) (entity.PropDoc, error) {
	frag, err := davxml.WriteFragment(davxml.Child{Name: name, Val: v})
	if err != nil {
		return entity.PropDoc{}, fmt.Errorf("encode prop fragment failed, key:%s, err:%w", name.Key(), err)
	}
	return entity.PropDoc{Lang: v.Lang, Fragment: frag}, nil
}

func decodePropDoc(rec entity.PropDoc) (*davxml.Value, error) {
	c, err := davxml.ParseFragment(rec.Fragment)
	if err != nil {
		return nil, fmt.Errorf("decode prop fragment failed, err:%w", err)
	}
	c.Val.Lang = rec.Lang
	return c.Val, nil
}

type lockStore struct {
	r *resource
}

func (s *lockStore) List(ctx context.Context) ([]*davlock.Lock, error) {
	ent, err := s.r.entry(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.r.a.readMetaDoc(ctx, ent.EntryId, true)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(doc.Locks))
	for token := range doc.Locks {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	rs := make([]*davlock.Lock, 0, len(tokens))
	for _, token := range tokens {
		rs = append(rs, decodeLockDoc(doc.Locks[token], s.r.url))
	}
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
	ent, err := s.r.entry(ctx)
	if err != nil {
		return err
	}
	return s.r.a.mutateMetaDoc(ctx, ent.EntryId, func(doc *entity.MetaDoc) error {
		if doc.Locks == nil {
			doc.Locks = make(map[string]entity.LockDoc)
		}
		doc.Locks[l.Token] = encodeLockDoc(l)
		return nil
	})
}

func (s *lockStore) Delete(ctx context.Context, token string) error {
	ent, err := s.r.entry(ctx)
	if err != nil {
		return err
	}
	return s.r.a.mutateMetaDoc(ctx, ent.EntryId, func(doc *entity.MetaDoc) error {
		delete(doc.Locks, token)
		return nil
	})
}

func encodeLockDoc(l *davlock.Lock) entity.LockDoc {
	timeout := int64(-1)
	if l.Timeout >= 0 {
		timeout = int64(l.Timeout / time.Second)
	}
	return entity.LockDoc{
		Token:       l.Token,
		Principal:   l.Principal,
		Ctime:       l.Created.UnixMilli(),
		TimeoutSec:  timeout,
		Exclusive:   l.Exclusive,
		ZeroDepth:   l.ZeroDepth,
		OwnerXML:    l.OwnerXML,
		Provisional: l.Provisional,
	}
}

// 锁的资源路径不落盘, 读取时由所在资源回填, 子树改名后无需重写历史记录
func decodeLockDoc(rec entity.LockDoc, url string) *davlock.Lock {
	timeout := davlock.TimeoutInfinite
	if rec.TimeoutSec >= 0 {
		timeout = time.Duration(rec.TimeoutSec) * time.Second
	}
	return &davlock.Lock{
		Token:       rec.Token,
		Root:        url,
		Principal:   rec.Principal,
		Created:     time.UnixMilli(rec.Ctime),
		Timeout:     timeout,
		Exclusive:   rec.Exclusive,
		ZeroDepth:   rec.ZeroDepth,
		OwnerXML:    rec.OwnerXML,
		Provisional: rec.Provisional,
	}
}
