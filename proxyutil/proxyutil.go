package proxyutil

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type userInfoKeyType struct{}

var userInfoKey userInfoKeyType

type UserInfo struct {
	AuthType string
	Username string
}

func SetUserInfo(ctx context.Context, info *UserInfo) context.Context {
	return context.WithValue(ctx, userInfoKey, info)
}

func GetUserInfo(ctx context.Context) (*UserInfo, bool) {
	info, ok := ctx.Value(userInfoKey).(*UserInfo)
	return info, ok
}

// FailStatus 记录错误并以指定状态码中断请求
func FailStatus(c *gin.Context, code int, err error) {
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("code", code),
		zap.Error(err))
	c.AbortWithStatus(code)
}

// FailSilent 客户端预期内的失败(如锁冲突), 仅debug级别记录
func FailSilent(c *gin.Context, code int, err error) {
	logutil.GetLogger(c.Request.Context()).Debug("request rejected",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("code", code),
		zap.Error(err))
	c.AbortWithStatus(code)
}
