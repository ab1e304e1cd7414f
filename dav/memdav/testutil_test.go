package memdav

import (
	"time"

	"github.com/xxxsen/davgate/davlock"
)

func newTestLock(principal string) *davlock.Lock {
	return &davlock.Lock{
		Token:     davlock.NewToken(),
		Principal: principal,
		Created:   time.Now(),
		Timeout:   time.Minute,
		Exclusive: true,
	}
}
