package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/davgate/dav/memdav"
)

func TestNewServer(t *testing.T) {
	_, err := New("127.0.0.1:0")
	assert.Error(t, err)

	svr, err := New("127.0.0.1:0",
		WithAdapter(memdav.New()),
		WithUser(map[string]string{"alice": "secret"}),
		WithDavRoot("/dav"),
	)
	require.NoError(t, err)
	assert.Equal(t, "/dav", svr.c.davRoot)
	assert.NotNil(t, svr.engine)
}
