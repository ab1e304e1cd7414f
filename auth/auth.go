// Package auth 请求认证的注册表. 认证方式在init中登记,
// 中间件按登记顺序逐个尝试, 首个通过者给出请求主体
package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
)

var ErrNoCredential = errors.New("auth: no credential carried")

// UserQueryFunc 按账号查询密钥, 第二个返回值标识账号是否存在
type UserQueryFunc func(ctx context.Context, ak string) (string, bool, error)

func MapUserMatch(ud map[string]string) UserQueryFunc {
	return func(ctx context.Context, ak string) (string, bool, error) {
		sk, ok := ud[ak]
		return sk, ok, nil
	}
}

type IAuth interface {
	Name() string
	// Auth 校验通过时返回请求主体(账号名)
	Auth(ctx *gin.Context, userdata UserQueryFunc) (string, error)
}

// 保持登记顺序, 认证尝试的次序可预期
var registry []IAuth

func register(fn IAuth) {
	registry = append(registry, fn)
}

func AuthList() []IAuth {
	rs := make([]IAuth, len(registry))
	copy(rs, registry)
	return rs
}
