package webdav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/davlock"
	"github.com/xxxsen/davgate/proxyutil"
	"github.com/xxxsen/davgate/utils"
)

// RFC4918在HTTP/1.1之外扩展的状态码
const (
	StatusMulti               = 207
	StatusLocked              = 423
	StatusFailedDependency    = 424
	StatusInsufficientStorage = 507
)

func statusText(code int) string {
	switch code {
	case StatusMulti:
		return "Multi-Status"
	case StatusLocked:
		return "Locked"
	case StatusFailedDependency:
		return "Failed Dependency"
	case StatusInsufficientStorage:
		return "Insufficient Storage"
	}
	return http.StatusText(code)
}

var AllowMethods = []string{
	http.MethodOptions,
	http.MethodGet,
	http.MethodHead,
	http.MethodPut,
	http.MethodDelete,
	"MKCOL",
	"COPY",
	"MOVE",
	"PROPFIND",
	"PROPPATCH",
	"LOCK",
	"UNLOCK",
}

var (
	errBadDestination = errors.New("webdav: invalid destination")
	errBadDepth       = errors.New("webdav: invalid depth")
	errBadLockInfo    = errors.New("webdav: invalid lock info")
	errBadIfHeader    = errors.New("webdav: invalid if header")
	errBodyTimeout    = errors.New("webdav: read body timeout")
	errBadEncoding    = errors.New("webdav: unsupported content encoding")
)

type config struct {
	prefix             string
	enableCompress     bool
	prettyXML          bool
	propfindInfinity   bool
	requestTimeout     time.Duration
	defaultLockTimeout time.Duration
	maxLockTimeout     time.Duration
}

type Option func(c *config)

func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

func WithCompress(v bool) Option {
	return func(c *config) {
		c.enableCompress = v
	}
}

func WithPrettyXML(v bool) Option {
	return func(c *config) {
		c.prettyXML = v
	}
}

// WithPropfindInfinity 允许PROPFIND Depth:infinity全量遍历, 默认按Depth:1收敛
func WithPropfindInfinity(v bool) Option {
	return func(c *config) {
		c.propfindInfinity = v
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		c.requestTimeout = d
	}
}

func WithLockTimeout(def time.Duration, max time.Duration) Option {
	return func(c *config) {
		c.defaultLockTimeout = def
		c.maxLockTimeout = max
	}
}

func applyOpts(opts ...Option) *config {
	c := &config{
		enableCompress:     true,
		requestTimeout:     30 * time.Second,
		defaultLockTimeout: 5 * time.Minute,
		maxLockTimeout:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type webdavHandler struct {
	adapter dav.IAdapter
	engine  *davlock.Engine
	c       *config
}

func NewWebdavHandler(adapter dav.IAdapter, opts ...Option) *webdavHandler {
	c := applyOpts(opts...)
	return &webdavHandler{
		adapter: adapter,
		engine:  davlock.NewEngine(dav.NewLockStore(adapter), "/"),
		c:       c,
	}
}

func (h *webdavHandler) Handler(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodOptions:
		h.handleOptions(c)
	case http.MethodGet:
		h.handleGet(c)
	case http.MethodHead:
		h.handleHead(c)
	case http.MethodPut:
		h.handlePut(c)
	case http.MethodDelete:
		h.handleDelete(c)
	case "MKCOL":
		h.handleMkcol(c)
	case "COPY", "MOVE":
		h.handleCopyMove(c)
	case "PROPFIND":
		h.handlePropfind(c)
	case "PROPPATCH":
		h.handlePropPatch(c)
	case "LOCK":
		h.handleLock(c)
	case "UNLOCK":
		h.handleUnlock(c)
	default:
		c.AbortWithStatus(http.StatusMethodNotAllowed)
		logutil.GetLogger(c.Request.Context()).Error("unsupported method",
			zap.String("method", c.Request.Method))
	}
}

// buildSrcPath 剥离路由前缀, 得到资源的规范路径
func (h *webdavHandler) buildSrcPath(c *gin.Context) string {
	p := c.Request.URL.Path
	if h.c.prefix != "" {
		p = strings.TrimPrefix(p, h.c.prefix)
	}
	return utils.CleanPath(p)
}

// tryBuildDstPath 解析Destination头, 必须与请求同scheme+authority
func (h *webdavHandler) tryBuildDstPath(c *gin.Context) (string, error) {
	raw := c.GetHeader("Destination")
	if raw == "" {
		return "", errBadDestination
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadDestination, err)
	}
	if u.Host != "" && u.Host != c.Request.Host {
		return "", errBadDestination
	}
	if u.Scheme != "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if u.Scheme != scheme {
			return "", errBadDestination
		}
	}
	p := u.Path
	if h.c.prefix != "" {
		trimmed := strings.TrimPrefix(p, h.c.prefix)
		if trimmed == p && p != h.c.prefix {
			return "", errBadDestination
		}
		p = trimmed
	}
	return utils.CleanPath(p), nil
}

func (h *webdavHandler) principal(ctx context.Context) string {
	info, ok := proxyutil.GetUserInfo(ctx)
	if !ok {
		return ""
	}
	return info.Username
}

// submittedTokens If头与Lock-Token头中携带的全部锁token
func (h *webdavHandler) submittedTokens(c *gin.Context) []string {
	var rs []string
	if ih, ok := parseIfHeader(c.GetHeader("If")); ok {
		rs = append(rs, ih.tokens()...)
	}
	if t := strings.Trim(c.GetHeader("Lock-Token"), "<>"); t != "" {
		rs = append(rs, t)
	}
	return rs
}

// permission 请求对目标url的锁权限判定
func (h *webdavHandler) permission(c *gin.Context, url string, method string) (int, *davlock.Set, error) {
	ctx := c.Request.Context()
	return h.engine.Permission(ctx, url, method, h.principal(ctx), h.submittedTokens(c))
}

// href 资源的对外路径, 目录补尾部'/'
func (h *webdavHandler) href(url string, isCollection bool) string {
	p := h.c.prefix + utils.CleanPath(url)
	return utils.CollectionHref(p, isCollection)
}

// lockedError 423应答, 附lock-token-submitted错误体
func (h *webdavHandler) lockedError(c *gin.Context) {
	c.Header("Retry-After", "60")
	h.writeErrorXML(c, StatusLocked, "lock-token-submitted", "")
}

func (h *webdavHandler) statusFromErr(err error) int {
	switch {
	case errors.Is(err, dav.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dav.ErrExist):
		return http.StatusMethodNotAllowed
	case errors.Is(err, dav.ErrNoParent):
		return http.StatusConflict
	case errors.Is(err, dav.ErrNoSpace):
		return StatusInsufficientStorage
	case errors.Is(err, errBodyTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, errBadEncoding):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}
