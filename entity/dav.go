package entity

// ResourceStat 资源的可计算属性集合, 由适配层返回
type ResourceStat struct {
	DisplayName string `json:"display_name"`
	IsDir       bool   `json:"is_dir"`
	Length      int64  `json:"length"`
	MediaType   string `json:"media_type"`
	Etag        string `json:"etag"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}

// LockDoc 元数据文档中持久化的单个锁
type LockDoc struct {
	Token       string `json:"token"`
	Principal   string `json:"principal"`
	Ctime       int64  `json:"ctime"`
	TimeoutSec  int64  `json:"timeout_sec"` // -1表示无限期
	Exclusive   bool   `json:"exclusive"`
	ZeroDepth   bool   `json:"zero_depth"`
	OwnerXML    string `json:"owner_xml,omitempty"`
	Provisional bool   `json:"provisional,omitempty"`
}

// PropDoc 元数据文档中持久化的单个死属性
type PropDoc struct {
	Lang     string `json:"lang,omitempty"`
	Fragment string `json:"fragment"`
}

// MetaDoc 每个资源一份的元数据文档, 属性按限定名索引, 锁按token索引
type MetaDoc struct {
	Version uint64             `json:"version"`
	Props   map[string]PropDoc `json:"props,omitempty"`
	Locks   map[string]LockDoc `json:"locks,omitempty"`
}
