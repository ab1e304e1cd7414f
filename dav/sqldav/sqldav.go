// Package sqldav sqlite后端的适配层实现: 目录树存放在dav_entry_tab,
// 文件内容存放在dav_blob_tab, 死属性与锁合并为每资源一份的元数据文档,
// 通过版本号CAS更新
package sqldav

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/didi/gendry/builder"
	explru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/dbkit"
	"github.com/xxxsen/common/idgen"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/entity"
	"github.com/xxxsen/davgate/utils"
)

const (
	fileKindDir  = 1
	fileKindFile = 2

	rootEntryID = uint64(0)

	defaultEntryTab = "dav_entry_tab"
	defaultBlobTab  = "dav_blob_tab"
	defaultMetaTab  = "dav_meta_tab"

	defaultListPageSize    = 128
	defaultCasRetryLimit   = 5
	defaultStatCacheSize   = 10000
	defaultStatCacheExpire = 30 * time.Second
	defaultMetaCacheTTL    = 1 * time.Second
)

type davEntryTab struct {
	Id            uint64 `json:"id"`
	EntryId       uint64 `json:"entry_id"`
	ParentEntryId uint64 `json:"parent_entry_id"`
	FileKind      int32  `json:"file_kind"`
	Ctime         int64  `json:"ctime"`
	Mtime         int64  `json:"mtime"`
	FileSize      int64  `json:"file_size"`
	Provisional   int32  `json:"provisional"`
	FileName      string `json:"file_name"`
}

type davMetaTab struct {
	Id      uint64 `json:"id"`
	EntryId uint64 `json:"entry_id"`
	Version uint64 `json:"version"`
	Doc     string `json:"doc"`
}

type davBlobTab struct {
	Id      uint64 `json:"id"`
	EntryId uint64 `json:"entry_id"`
	Data    []byte `json:"data"`
}

type Adapter struct {
	db        database.IDatabase
	gen       idgen.IDGenerator
	statCache *explru.LRU[string, *davEntryTab]
	metaCache *ristretto.Cache[uint64, *entity.MetaDoc]
}

func New(db database.IDatabase) (*Adapter, error) {
	mc, err := ristretto.NewCache(&ristretto.Config[uint64, *entity.MetaDoc]{
		NumCounters: 10 * defaultStatCacheSize,
		MaxCost:     defaultStatCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create meta cache failed, err:%w", err)
	}
	return &Adapter{
		db:        db,
		gen:       idgen.Default(),
		statCache: explru.NewLRU[string, *davEntryTab](defaultStatCacheSize, nil, defaultStatCacheExpire),
		metaCache: mc,
	}, nil
}

func rootEntry() *davEntryTab {
	return &davEntryTab{EntryId: rootEntryID, FileKind: fileKindDir, FileName: "/"}
}

func splitSegments(url string) []string {
	url = utils.CleanPath(url)
	if url == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(url, "/"), "/")
}

func (a *Adapter) searchEntry(ctx context.Context, q database.IQueryer, pid uint64, name string) (*davEntryTab, bool, error) {
	where := map[string]interface{}{
		"parent_entry_id": pid,
		"file_name":       name,
		"_limit":          []uint{0, 1},
	}
	rs := make([]*davEntryTab, 0, 1)
	if err := dbkit.SimpleQuery(ctx, q, defaultEntryTab, where, &rs, dbkit.ScanWithTagName("json")); err != nil {
		return nil, false, err
	}
	if len(rs) == 0 {
		return nil, false, nil
	}
	return rs[0], true, nil
}

func (a *Adapter) resolveEntry(ctx context.Context, url string) (*davEntryTab, error) {
	url = utils.CleanPath(url)
	if url == "/" {
		return rootEntry(), nil
	}
	if v, ok := a.statCache.Get(url); ok {
		return v, nil
	}
	pid := rootEntryID
	var cur *davEntryTab
	for idx, seg := range splitSegments(url) {
		if idx > 0 && cur.FileKind != fileKindDir {
			return nil, dav.ErrNotFound
		}
		ent, ok, err := a.searchEntry(ctx, a.db, pid, seg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, dav.ErrNotFound
		}
		cur = ent
		pid = ent.EntryId
	}
	a.statCache.Add(url, cur)
	return cur, nil
}

func (a *Adapter) invalidate(url string) {
	a.statCache.Remove(utils.CleanPath(url))
	a.statCache.Remove(utils.ParentPath(url))
}

func (a *Adapter) createEntry(ctx context.Context, exec database.IExecer, ent *davEntryTab) (uint64, error) {
	eid := a.gen.NextId()
	data := []map[string]interface{}{
		{
			"entry_id":        eid,
			"parent_entry_id": ent.ParentEntryId,
			"file_kind":       ent.FileKind,
			"ctime":           ent.Ctime,
			"mtime":           ent.Mtime,
			"file_size":       ent.FileSize,
			"provisional":     ent.Provisional,
			"file_name":       ent.FileName,
		},
	}
	sql, args, err := builder.BuildInsert(defaultEntryTab, data)
	if err != nil {
		return 0, err
	}
	rs, err := exec.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	cnt, err := rs.RowsAffected()
	if err != nil {
		return 0, err
	}
	if cnt == 0 {
		return 0, fmt.Errorf("insert entry failed, no row inserted")
	}
	return eid, nil
}

func (a *Adapter) updateEntry(ctx context.Context, exec database.IExecer, entryID uint64, update map[string]interface{}) error {
	where := map[string]interface{}{
		"entry_id": entryID,
	}
	sql, args, err := builder.BuildUpdate(defaultEntryTab, where, update)
	if err != nil {
		return err
	}
	if _, err := exec.ExecContext(ctx, sql, args...); err != nil {
		return err
	}
	return nil
}

func (a *Adapter) deleteRow(ctx context.Context, exec database.IExecer, tab string, entryID uint64) error {
	sql, args, err := builder.BuildDelete(tab, map[string]interface{}{"entry_id": entryID})
	if err != nil {
		return err
	}
	if _, err := exec.ExecContext(ctx, sql, args...); err != nil {
		return err
	}
	return nil
}

func (a *Adapter) listChildren(ctx context.Context, pid uint64) ([]*davEntryTab, error) {
	var offset uint
	rs := make([]*davEntryTab, 0, defaultListPageSize)
	for offset = 0; ; offset += defaultListPageSize {
		where := map[string]interface{}{
			"parent_entry_id": pid,
			"_orderby":        "file_name asc",
			"_limit":          []uint{offset, defaultListPageSize},
		}
		page := make([]*davEntryTab, 0, defaultListPageSize)
		if err := dbkit.SimpleQuery(ctx, a.db, defaultEntryTab, where, &page, dbkit.ScanWithTagName("json")); err != nil {
			return nil, err
		}
		rs = append(rs, page...)
		if len(page) < defaultListPageSize {
			break
		}
	}
	return rs, nil
}

func (a *Adapter) readMetaDoc(ctx context.Context, entryID uint64, useCache bool) (*entity.MetaDoc, error) {
	if useCache {
		if v, ok := a.metaCache.Get(entryID); ok {
			return v, nil
		}
	}
	where := map[string]interface{}{
		"entry_id": entryID,
		"_limit":   []uint{0, 1},
	}
	rs := make([]*davMetaTab, 0, 1)
	if err := dbkit.SimpleQuery(ctx, a.db, defaultMetaTab, where, &rs, dbkit.ScanWithTagName("json")); err != nil {
		return nil, err
	}
	doc := &entity.MetaDoc{}
	if len(rs) > 0 {
		if err := json.Unmarshal([]byte(rs[0].Doc), doc); err != nil {
			return nil, fmt.Errorf("decode meta doc failed, entry:%d, err:%w", entryID, err)
		}
		doc.Version = rs[0].Version
	}
	if useCache {
		a.metaCache.SetWithTTL(entryID, doc, 1, defaultMetaCacheTTL)
	}
	return doc, nil
}

// mutateMetaDoc 读取-修改-CAS写回, 提交前总是重读数据库中的最新版本
func (a *Adapter) mutateMetaDoc(ctx context.Context, entryID uint64, fn func(doc *entity.MetaDoc) error) error {
	defer a.metaCache.Del(entryID)
	for i := 0; i < defaultCasRetryLimit; i++ {
		doc, err := a.readMetaDoc(ctx, entryID, false)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if doc.Version == 0 {
			data := []map[string]interface{}{
				{
					"entry_id": entryID,
					"version":  1,
					"doc":      string(raw),
				},
			}
			sql, args, err := builder.BuildInsert(defaultMetaTab, data)
			if err != nil {
				return err
			}
			if _, err := a.db.ExecContext(ctx, sql, args...); err == nil {
				return nil
			}
			continue
		}
		where := map[string]interface{}{
			"entry_id": entryID,
			"version":  doc.Version,
		}
		update := map[string]interface{}{
			"version": doc.Version + 1,
			"doc":     string(raw),
		}
		sql, args, err := builder.BuildUpdate(defaultMetaTab, where, update)
		if err != nil {
			return err
		}
		rs, err := a.db.ExecContext(ctx, sql, args...)
		if err != nil {
			return err
		}
		cnt, err := rs.RowsAffected()
		if err != nil {
			return err
		}
		if cnt > 0 {
			return nil
		}
	}
	return fmt.Errorf("update meta doc failed, cas conflict, entry:%d", entryID)
}

func (a *Adapter) GetResource(ctx context.Context, url string) (dav.IResource, error) {
	if _, err := a.resolveEntry(ctx, url); err != nil {
		return nil, err
	}
	return &resource{a: a, url: utils.CleanPath(url)}, nil
}

func (a *Adapter) CreatePlaceholder(ctx context.Context, url string) (dav.IResource, error) {
	url = utils.CleanPath(url)
	if _, err := a.resolveEntry(ctx, url); err == nil {
		return nil, dav.ErrExist
	}
	parent, err := a.resolveEntry(ctx, utils.ParentPath(url))
	if err != nil {
		return nil, dav.ErrNoParent
	}
	if parent.FileKind != fileKindDir {
		return nil, dav.ErrNoParent
	}
	now := time.Now().UnixMilli()
	if _, err := a.createEntry(ctx, a.db, &davEntryTab{
		ParentEntryId: parent.EntryId,
		FileKind:      fileKindFile,
		Ctime:         now,
		Mtime:         now,
		Provisional:   1,
		FileName:      utils.BaseName(url),
	}); err != nil {
		return nil, err
	}
	a.invalidate(url)
	return &resource{a: a, url: url}, nil
}

func (a *Adapter) IsAuthorized(ctx context.Context, url string, method string, user string) bool {
	// 鉴权由上游的认证中间件完成, 适配层默认放行
	return true
}

type resource struct {
	a   *Adapter
	url string
}

func (r *resource) entry(ctx context.Context) (*davEntryTab, error) {
	return r.a.resolveEntry(ctx, r.url)
}

func (r *resource) CanonicalURL() string {
	return r.url
}

func (r *resource) IsCollection() bool {
	ent, err := r.entry(context.Background())
	return err == nil && ent.FileKind == fileKindDir
}

func (r *resource) Provisional() bool {
	ent, err := r.entry(context.Background())
	return err == nil && ent.Provisional != 0
}

func (r *resource) Stats(ctx context.Context) (*entity.ResourceStat, error) {
	ent, err := r.entry(ctx)
	if err != nil {
		return nil, err
	}
	st := &entity.ResourceStat{
		DisplayName: ent.FileName,
		IsDir:       ent.FileKind == fileKindDir,
		Ctime:       ent.Ctime,
		Mtime:       ent.Mtime,
	}
	if !st.IsDir {
		st.Length = ent.FileSize
		st.MediaType = utils.DetermineMimeType(ent.FileName)
		st.Etag = utils.WeakEtag(r.url, ent.FileSize, ent.Mtime)
	}
	return st, nil
}

func (r *resource) Children(ctx context.Context) ([]dav.IResource, error) {
	ent, err := r.entry(ctx)
	if err != nil {
		return nil, err
	}
	if ent.FileKind != fileKindDir {
		return nil, nil
	}
	items, err := r.a.listChildren(ctx, ent.EntryId)
	if err != nil {
		return nil, err
	}
	rs := make([]dav.IResource, 0, len(items))
	for _, item := range items {
		rs = append(rs, &resource{a: r.a, url: utils.JoinPath(r.url, item.FileName)})
	}
	return rs, nil
}

func (r *resource) readBlob(ctx context.Context, entryID uint64) ([]byte, error) {
	where := map[string]interface{}{
		"entry_id": entryID,
		"_limit":   []uint{0, 1},
	}
	rs := make([]*davBlobTab, 0, 1)
	if err := dbkit.SimpleQuery(ctx, r.a.db, defaultBlobTab, where, &rs, dbkit.ScanWithTagName("json")); err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, nil
	}
	return rs[0].Data, nil
}

func (r *resource) writeBlob(ctx context.Context, exec database.IExecer, entryID uint64, data []byte) error {
	where := map[string]interface{}{
		"entry_id": entryID,
	}
	update := map[string]interface{}{
		"data": data,
	}
	sql, args, err := builder.BuildUpdate(defaultBlobTab, where, update)
	if err != nil {
		return err
	}
	rs, err := exec.ExecContext(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cnt, err := rs.RowsAffected(); err == nil && cnt > 0 {
		return nil
	}
	insert := []map[string]interface{}{
		{
			"entry_id": entryID,
			"data":     data,
		},
	}
	sql, args, err = builder.BuildInsert(defaultBlobTab, insert)
	if err != nil {
		return err
	}
	if _, err := exec.ExecContext(ctx, sql, args...); err != nil {
		return err
	}
	return nil
}

func (r *resource) ReadStream(ctx context.Context) (io.ReadCloser, error) {
	ent, err := r.entry(ctx)
	if err != nil {
		return nil, err
	}
	data, err := r.readBlob(ctx, ent.EntryId)
	if err != nil {
		return nil, err
	}
	return utils.ReadSeekNopCloser(bytes.NewReader(data)), nil
}

func (r *resource) WriteStream(ctx context.Context, rd io.Reader, size int64) error {
	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	ent, err := r.entry(ctx)
	if err != nil {
		return err
	}
	if err := r.a.db.OnTransation(ctx, func(ctx context.Context, qe database.IQueryExecer) error {
		if err := r.writeBlob(ctx, qe, ent.EntryId, data); err != nil {
			return err
		}
		return r.a.updateEntry(ctx, qe, ent.EntryId, map[string]interface{}{
			"file_size":   len(data),
			"mtime":       time.Now().UnixMilli(),
			"provisional": 0,
		})
	}); err != nil {
		return err
	}
	r.a.invalidate(r.url)
	return nil
}

func (r *resource) MakeCollection(ctx context.Context) error {
	ent, err := r.entry(ctx)
	if err != nil {
		return err
	}
	if ent.FileKind == fileKindDir {
		return nil
	}
	if err := r.a.updateEntry(ctx, r.a.db, ent.EntryId, map[string]interface{}{
		"file_kind":   fileKindDir,
		"file_size":   0,
		"provisional": 0,
		"mtime":       time.Now().UnixMilli(),
	}); err != nil {
		return err
	}
	r.a.invalidate(r.url)
	return nil
}

func (r *resource) Delete(ctx context.Context) error {
	ent, err := r.entry(ctx)
	if err != nil {
		return err
	}
	if ent.EntryId == rootEntryID {
		return fmt.Errorf("root collection can not be deleted")
	}
	if err := r.a.db.OnTransation(ctx, func(ctx context.Context, qe database.IQueryExecer) error {
		for _, tab := range []string{defaultEntryTab, defaultBlobTab, defaultMetaTab} {
			if err := r.a.deleteRow(ctx, qe, tab, ent.EntryId); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	r.a.invalidate(r.url)
	r.a.metaCache.Del(ent.EntryId)
	return nil
}

func (r *resource) CopyTo(ctx context.Context, dst string) (dav.IResource, error) {
	dst = utils.CleanPath(dst)
	ent, err := r.entry(ctx)
	if err != nil {
		return nil, err
	}
	parent, err := r.a.resolveEntry(ctx, utils.ParentPath(dst))
	if err != nil {
		return nil, dav.ErrNoParent
	}
	if parent.FileKind != fileKindDir {
		return nil, dav.ErrNoParent
	}
	if old, err := r.a.resolveEntry(ctx, dst); err == nil && old.EntryId != rootEntryID {
		if err := (&resource{a: r.a, url: dst}).Delete(ctx); err != nil {
			return nil, err
		}
	}
	var data []byte
	if ent.FileKind == fileKindFile {
		if data, err = r.readBlob(ctx, ent.EntryId); err != nil {
			return nil, err
		}
	}
	srcDoc, err := r.a.readMetaDoc(ctx, ent.EntryId, false)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	eid, err := r.a.createEntry(ctx, r.a.db, &davEntryTab{
		ParentEntryId: parent.EntryId,
		FileKind:      ent.FileKind,
		Ctime:         now,
		Mtime:         now,
		FileSize:      ent.FileSize,
		FileName:      utils.BaseName(dst),
	})
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := r.writeBlob(ctx, r.a.db, eid, data); err != nil {
			return nil, err
		}
	}
	// 死属性随复制保留, 锁不携带
	if len(srcDoc.Props) > 0 {
		if err := r.a.mutateMetaDoc(ctx, eid, func(doc *entity.MetaDoc) error {
			doc.Props = srcDoc.Props
			return nil
		}); err != nil {
			return nil, err
		}
	}
	r.a.invalidate(dst)
	return &resource{a: r.a, url: dst}, nil
}

func (r *resource) MoveTo(ctx context.Context, dst string) (dav.IResource, error) {
	dst = utils.CleanPath(dst)
	ent, err := r.entry(ctx)
	if err != nil {
		return nil, err
	}
	if ent.EntryId == rootEntryID {
		return nil, fmt.Errorf("root collection can not be moved")
	}
	parent, err := r.a.resolveEntry(ctx, utils.ParentPath(dst))
	if err != nil {
		return nil, dav.ErrNoParent
	}
	if parent.FileKind != fileKindDir {
		return nil, dav.ErrNoParent
	}
	if old, err := r.a.resolveEntry(ctx, dst); err == nil && old.EntryId != rootEntryID {
		if err := (&resource{a: r.a, url: dst}).Delete(ctx); err != nil {
			return nil, err
		}
	}
	if err := r.a.updateEntry(ctx, r.a.db, ent.EntryId, map[string]interface{}{
		"parent_entry_id": parent.EntryId,
		"file_name":       utils.BaseName(dst),
		"mtime":           time.Now().UnixMilli(),
	}); err != nil {
		return nil, err
	}
	r.a.invalidate(r.url)
	r.a.invalidate(dst)
	return &resource{a: r.a, url: dst}, nil
}

func (r *resource) Properties() dav.IPropertyStore {
	return &propStore{r: r}
}

func (r *resource) Locks() dav.ILockStore {
	return &lockStore{r: r}
}
