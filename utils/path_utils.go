package utils

import (
	"path"
	"strings"
)

// CleanPath 将请求路径规整为以'/'开头, 无尾部'/'的标准形式
func CleanPath(p string) string {
	if len(p) == 0 {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = path.Clean(p)
	return p
}

func ParentPath(p string) string {
	p = CleanPath(p)
	if p == "/" {
		return ""
	}
	return path.Dir(p)
}

func BaseName(p string) string {
	return path.Base(CleanPath(p))
}

func JoinPath(dir, name string) string {
	return path.Join(CleanPath(dir), name)
}

// IsSubPath 判断child是否位于ancestor之下(不含相等的场景)
func IsSubPath(ancestor, child string) bool {
	ancestor = CleanPath(ancestor)
	child = CleanPath(child)
	if ancestor == child {
		return false
	}
	if ancestor == "/" {
		return true
	}
	return strings.HasPrefix(child, ancestor+"/")
}

// CollectionHref 目录资源对外展示时需要带上尾部'/'
func CollectionHref(p string, isCollection bool) string {
	p = CleanPath(p)
	if isCollection && p != "/" {
		return p + "/"
	}
	return p
}
