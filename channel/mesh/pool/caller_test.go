package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpc "google.golang.org/grpc"
)

func TestCaller(t *testing.T) {
	caller := NewCaller()
	defer caller.Close()

	t.Run("pools are reused per address", func(t *testing.T) {
		var first, second *grpc.ClientConn
		require.NoError(t, caller.Call("127.0.0.1:1", func(c *grpc.ClientConn) error {
			first = c
			return nil
		}))
		require.NoError(t, caller.Call("127.0.0.1:1", func(c *grpc.ClientConn) error {
			second = c
			return nil
		}))
		assert.True(t, first == second)
		assert.Equal(t, 1, caller.Len())
	})
	t.Run("cancel removes the pool", func(t *testing.T) {
		require.NoError(t, caller.Cancel("127.0.0.1:1"))
		assert.Equal(t, 0, caller.Len())
		assert.Equal(t, ErrPoolNotFound, caller.Cancel("127.0.0.1:1"))
	})
	t.Run("close drops every pool", func(t *testing.T) {
		require.NoError(t, caller.Call("127.0.0.1:1", func(*grpc.ClientConn) error { return nil }))
		require.NoError(t, caller.Call("127.0.0.1:2", func(*grpc.ClientConn) error { return nil }))
		assert.Equal(t, 2, caller.Len())
		caller.Close()
		assert.Equal(t, 0, caller.Len())
	})
}
