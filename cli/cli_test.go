package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/grid/channel/local"
	"github.com/vx-labs/grid/channel/mesh"
	"github.com/vx-labs/grid/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newContext(t *testing.T, args ...string) *Context {
	v := viper.New()
	cmd := &cobra.Command{Use: "gridnode"}
	AddClusterFlags(cmd, v)
	require.NoError(t, cmd.Flags().Parse(args))
	return &Context{ID: "node-1", Logger: zap.NewNop(), Config: v, Command: cmd}
}

func TestContext_Global(t *testing.T) {
	ctx := newContext(t, "--cluster-name", "prod", "--sync-timeout", "3s", "--config-string", "kind=local")
	global := ctx.Global()
	assert.Equal(t, "prod", global.ClusterName)
	assert.Equal(t, "node-1", global.NodeName)
	assert.Equal(t, 3*time.Second, global.DistributedSyncTimeout)
	assert.Equal(t, "kind=local", global.ConfigurationString)
}

func TestContext_OverlayStack(t *testing.T) {
	base := config.Stack{Kind: "mesh", BindAddress: "10.0.0.1", BindPort: 7000, RPCPort: 7001, Discovery: "static"}

	t.Run("untouched flags keep the stack", func(t *testing.T) {
		stack, err := newContext(t).OverlayStack(base)
		require.NoError(t, err)
		assert.Equal(t, base, stack)
	})
	t.Run("explicit flags override the stack", func(t *testing.T) {
		ctx := newContext(t,
			"--join", "10.0.0.2:7946,10.0.0.3:7946",
			"--gossip-bind-address", "127.0.0.1", "--gossip-bind-port", "8000",
			"--rpc-bind-address", "127.0.0.1", "--rpc-bind-port", "8001",
			"--discovery", "consul", "--consul-service", "grid",
		)
		core, logs := observer.New(zap.InfoLevel)
		ctx.Logger = zap.New(core)
		stack, err := ctx.OverlayStack(base)
		require.NoError(t, err)
		assert.Equal(t, 1, logs.FilterMessageSnippet("gossip listener bound on 127.0.0.1:8000").Len())
		assert.Equal(t, 1, logs.FilterMessageSnippet("rpc listener bound on 127.0.0.1:8001").Len())
		assert.Equal(t, []string{"10.0.0.2:7946", "10.0.0.3:7946"}, stack.JoinPeers)
		assert.Equal(t, "127.0.0.1", stack.BindAddress)
		assert.Equal(t, 8000, stack.BindPort)
		assert.Equal(t, 8000, stack.AdvertisePort)
		assert.Equal(t, 8001, stack.RPCPort)
		assert.Equal(t, "consul", stack.Discovery)
		assert.Equal(t, "grid", stack.ConsulService)
	})
	t.Run("invalid listener flags are rejected", func(t *testing.T) {
		ctx := newContext(t, "--gossip-bind-address", "not-an-ip", "--gossip-bind-port", "8000")
		_, err := ctx.OverlayStack(base)
		assert.Error(t, err)
	})
}

func TestContext_ChannelFactory(t *testing.T) {
	ctx := newContext(t)
	factory := ctx.ChannelFactory()

	t.Run("local", func(t *testing.T) {
		ch, err := factory(zap.NewNop(), config.Stack{Kind: "local", StreamingStateTransfer: true})
		require.NoError(t, err)
		require.IsType(t, &local.Channel{}, ch)
		assert.True(t, ch.SupportsStateTransfer())
	})
	t.Run("mesh", func(t *testing.T) {
		ch, err := factory(zap.NewNop(), config.Stack{Kind: "mesh", BindAddress: "127.0.0.1", BindPort: 7946, Discovery: "static"})
		require.NoError(t, err)
		assert.IsType(t, &mesh.Channel{}, ch)
	})
	t.Run("unknown kind", func(t *testing.T) {
		_, err := factory(zap.NewNop(), config.Stack{Kind: "carrier-pigeon"})
		assert.Error(t, err)
	})
	t.Run("unknown discovery", func(t *testing.T) {
		_, err := factory(zap.NewNop(), config.Stack{Kind: "mesh", Discovery: "dns"})
		assert.Error(t, err)
	})
}

func TestContext_Run(t *testing.T) {
	t.Run("a failing service stops the others", func(t *testing.T) {
		ctx := newContext(t)
		var order []string
		ctx.OnShutdown(func() { order = append(order, "first") })
		ctx.OnShutdown(func() { order = append(order, "second") })
		stopped := make(chan struct{})
		err := ctx.Run(
			func(c context.Context) error {
				return errors.New("boom")
			},
			func(c context.Context) error {
				<-c.Done()
				close(stopped)
				return nil
			},
		)
		assert.EqualError(t, err, "boom")
		<-stopped
		assert.Equal(t, []string{"second", "first"}, order)
	})
}

type staticHealth string

func (s staticHealth) Health() string { return string(s) }

func TestNewServeMux(t *testing.T) {
	for _, tc := range []struct {
		checkers []HealthChecker
		code     int
	}{
		{checkers: nil, code: http.StatusOK},
		{checkers: []HealthChecker{staticHealth("ok")}, code: http.StatusOK},
		{checkers: []HealthChecker{staticHealth("ok"), staticHealth("warning")}, code: http.StatusTooManyRequests},
		{checkers: []HealthChecker{staticHealth("critical")}, code: http.StatusInternalServerError},
	} {
		rec := httptest.NewRecorder()
		NewServeMux(tc.checkers...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, tc.code, rec.Code)
	}
	rec := httptest.NewRecorder()
	NewServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- ServeHTTP(ctx, zap.NewNop(), "127.0.0.1:0", NewServeMux())
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("http endpoint did not stop")
	}
}
