package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBasicCtx(user string, pass string, carry bool) *gin.Context {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest("GET", "/", nil)
	if carry {
		req.SetBasicAuth(user, pass)
	}
	c.Request = req
	return c
}

func TestBasicAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fn := MapUserMatch(map[string]string{"alice": "secret"})
	b := &basicAuth{}

	ak, err := b.Auth(newBasicCtx("alice", "secret", true), fn)
	require.NoError(t, err)
	assert.Equal(t, "alice", ak)

	_, err = b.Auth(newBasicCtx("alice", "wrong", true), fn)
	assert.Error(t, err)
	_, err = b.Auth(newBasicCtx("ghost", "secret", true), fn)
	assert.Error(t, err)
	_, err = b.Auth(newBasicCtx("", "", false), fn)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestAuthListOrder(t *testing.T) {
	list := AuthList()
	require.Len(t, list, 1)
	assert.Equal(t, BasicAuthName, list[0].Name())
}
