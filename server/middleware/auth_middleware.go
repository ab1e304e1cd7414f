package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/davgate/auth"
	"github.com/xxxsen/davgate/proxyutil"
)

// TryAuthMiddleware 逐个尝试已注册的认证方式, 校验通过则把主体写入请求上下文
func TryAuthMiddleware(users map[string]string) gin.HandlerFunc {
	matchfn := auth.MapUserMatch(users)
	ats := auth.AuthList()
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		for _, fn := range ats {
			ak, err := fn.Auth(c, matchfn)
			if err != nil {
				continue
			}
			logutil.GetLogger(ctx).Debug("user auth succ",
				zap.String("auth", fn.Name()), zap.String("ak", ak))
			ctx = proxyutil.SetUserInfo(ctx, &proxyutil.UserInfo{
				AuthType: fn.Name(),
				Username: ak,
			})
			c.Request = c.Request.WithContext(ctx)
			return
		}
	}
}

func MustAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, ok := proxyutil.GetUserInfo(c.Request.Context())
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="Restricted Area"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}
}
