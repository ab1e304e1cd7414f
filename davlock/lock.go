package davlock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeoutInfinite 无限期锁
const TimeoutInfinite = time.Duration(-1)

// Lock 单个写锁, Root为资源的规范路径
type Lock struct {
	Token       string
	Root        string
	Principal   string
	Created     time.Time
	Timeout     time.Duration
	Exclusive   bool
	ZeroDepth   bool
	OwnerXML    string
	Provisional bool
}

// NewToken 生成urn:uuid形式的锁token
func NewToken() string {
	return fmt.Sprintf("urn:uuid:%s", uuid.NewString())
}

func (l *Lock) Expired(now time.Time) bool {
	if l.Timeout < 0 {
		return false
	}
	return !now.Before(l.Created.Add(l.Timeout))
}

// Refresh 重置锁的计时起点并更新超时时间, 其余字段不变
func (l *Lock) Refresh(now time.Time, timeout time.Duration) {
	l.Created = now
	l.Timeout = timeout
}

// OwnedBy 判断请求是否持有该锁: token被提交且请求主体与锁主体一致
func (l *Lock) OwnedBy(principal string, tokens []string) bool {
	if l.Principal != principal {
		return false
	}
	for _, t := range tokens {
		if t == l.Token {
			return true
		}
	}
	return false
}
