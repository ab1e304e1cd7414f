package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	BasicAuthName = "basic"
)

func init() {
	register(&basicAuth{})
}

type basicAuth struct {
}

func (b *basicAuth) Name() string {
	return BasicAuthName
}

func (b *basicAuth) Auth(ctx *gin.Context, fn UserQueryFunc) (string, error) {
	ak, carry, ok := ctx.Request.BasicAuth()
	if !ok {
		return "", ErrNoCredential
	}
	sk, exist, err := fn(ctx, ak)
	if err != nil {
		return "", fmt.Errorf("query user failed, u:%s, err:%w", ak, err)
	}
	// 账号不存在时也走比较, 避免探测账号
	if subtle.ConstantTimeCompare([]byte(sk), []byte(carry)) != 1 || !exist {
		return "", fmt.Errorf("credential mismatch, u:%s", ak)
	}
	logutil.GetLogger(ctx.Request.Context()).Debug("basic auth passed", zap.String("principal", ak))
	return ak, nil
}
