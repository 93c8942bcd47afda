package store

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/channel/local"
	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/config"
	"github.com/vx-labs/grid/rpc"
	"github.com/vx-labs/grid/store/pb"
	"github.com/vx-labs/grid/transport"
	"go.uber.org/zap"
)

func openStore(t *testing.T) *BoltStore {
	dir, err := ioutil.TempDir("", "grid-store")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	db, err := New(Options{Path: filepath.Join(dir, "db.bolt"), NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBoltStore(t *testing.T) {
	db := openStore(t)
	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, db.Put("cacheA", "k1", []byte("v1")))
		value, err := db.Get("cacheA", "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)
	})
	t.Run("missing keys and resources", func(t *testing.T) {
		_, err := db.Get("cacheA", "missing")
		assert.Equal(t, ErrKeyNotFound, err)
		_, err = db.Get("missing", "k1")
		assert.Equal(t, ErrResourceNotFound, err)
		assert.Equal(t, ErrResourceNotFound, db.Delete("missing", "k1"))
	})
	t.Run("delete", func(t *testing.T) {
		require.NoError(t, db.Put("cacheA", "k2", []byte("v2")))
		require.NoError(t, db.Delete("cacheA", "k2"))
		_, err := db.Get("cacheA", "k2")
		assert.Equal(t, ErrKeyNotFound, err)
	})
	t.Run("resources are listed", func(t *testing.T) {
		require.NoError(t, db.Put("cacheB", "k1", []byte("v1")))
		resources, err := db.Resources()
		require.NoError(t, err)
		assert.Equal(t, []string{"cacheA", "cacheB"}, resources)
		count, err := db.Len("cacheA")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestBoltStore_State(t *testing.T) {
	source := openStore(t)
	target := openStore(t)
	require.NoError(t, source.Put("cacheA", "k1", []byte("v1")))
	require.NoError(t, source.Put("cacheA", "k2", bytes.Repeat([]byte("x"), 1024)))
	require.NoError(t, target.Put("cacheA", "stale", []byte("old")))

	buf := &bytes.Buffer{}
	require.NoError(t, source.GenerateState("cacheA", buf))
	state := buf.Bytes()

	t.Run("applied state replaces the resource", func(t *testing.T) {
		require.NoError(t, target.ApplyState("cacheA", bytes.NewReader(state)))
		value, err := target.Get("cacheA", "k2")
		require.NoError(t, err)
		assert.Len(t, value, 1024)
		_, err = target.Get("cacheA", "stale")
		assert.Equal(t, ErrKeyNotFound, err)
	})
	t.Run("truncated state leaves the resource untouched", func(t *testing.T) {
		require.NoError(t, target.Put("cacheA", "k3", []byte("v3")))
		err := target.ApplyState("cacheA", bytes.NewReader(state[:len(state)-10]))
		require.Error(t, err)
		value, err := target.Get("cacheA", "k3")
		require.NoError(t, err)
		assert.Equal(t, []byte("v3"), value)
	})
	t.Run("empty state creates an empty resource", func(t *testing.T) {
		require.NoError(t, target.ApplyState("cacheC", bytes.NewReader(nil)))
		count, err := target.Len("cacheC")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
	t.Run("unknown resources cannot be generated", func(t *testing.T) {
		assert.Equal(t, ErrResourceNotFound, source.GenerateState("missing", ioutil.Discard))
	})
}

func TestHandler(t *testing.T) {
	db := openStore(t)
	h := NewHandler(zap.NewNop(), db)
	ctx := context.Background()
	sender := cluster.FromNative("b")

	out, err := h.Handle(ctx, sender, &pb.PutCommand{Resource: "cacheA", Key: "k1", Value: []byte("v1")})
	require.NoError(t, err)
	assert.Nil(t, out)
	out, err = h.Handle(ctx, sender, &pb.GetCommand{Resource: "cacheA", Key: "k1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), out)
	out, err = h.Handle(ctx, sender, &pb.GetCommand{Resource: "cacheA", Key: "missing"})
	require.NoError(t, err)
	assert.Nil(t, out)
	_, err = h.Handle(ctx, sender, &pb.DeleteCommand{Resource: "missing", Key: "k1"})
	require.NoError(t, err)
	_, err = h.Handle(ctx, sender, "unknown")
	assert.Equal(t, ErrUnknownCommand, err)
}

type recordingInvoker struct {
	invocations []transport.Invocation
	responses   []rpc.Response
	members     []cluster.Address
}

func (r *recordingInvoker) InvokeRemotely(ctx context.Context, inv transport.Invocation) ([]rpc.Response, error) {
	r.invocations = append(r.invocations, inv)
	return r.responses, nil
}
func (r *recordingInvoker) Members() []cluster.Address { return r.members }
func (r *recordingInvoker) Address() cluster.Address   { return cluster.FromNative("a") }

func TestReplicated(t *testing.T) {
	db := openStore(t)
	invoker := &recordingInvoker{members: []cluster.Address{cluster.FromNative("a"), cluster.FromNative("b")}}
	r := NewReplicated(db, invoker, rpc.Synchronous, time.Second)
	ctx := context.Background()

	t.Run("writes are applied locally then sent to the other members", func(t *testing.T) {
		require.NoError(t, r.Put(ctx, "cacheA", "k1", []byte("v1")))
		value, err := db.Get("cacheA", "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)
		require.Len(t, invoker.invocations, 1)
		inv := invoker.invocations[0]
		assert.Equal(t, []cluster.Address{cluster.FromNative("b")}, inv.Recipients)
		assert.Equal(t, rpc.Synchronous, inv.Mode)
		assert.True(t, inv.SupportReplay)
		assert.Equal(t, &pb.PutCommand{Resource: "cacheA", Key: "k1", Value: []byte("v1")}, inv.Command)
	})
	t.Run("local values are read without invocation", func(t *testing.T) {
		value, err := r.Get(ctx, "cacheA", "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)
		assert.Len(t, invoker.invocations, 1)
	})
	t.Run("missing values are asked to the other members", func(t *testing.T) {
		invoker.responses = []rpc.Response{&rpc.SuccessfulResponse{Value: []byte("remote")}}
		value, err := r.Get(ctx, "cacheA", "k2")
		require.NoError(t, err)
		assert.Equal(t, []byte("remote"), value)
		inv := invoker.invocations[len(invoker.invocations)-1]
		assert.Equal(t, rpc.WaitForFirstValid, inv.Mode)
		assert.True(t, inv.UsePriority)
		assert.NotNil(t, inv.Filter)
	})
	t.Run("values missing everywhere", func(t *testing.T) {
		invoker.responses = []rpc.Response{}
		_, err := r.Get(ctx, "cacheA", "k3")
		assert.Equal(t, ErrKeyNotFound, err)
	})
	t.Run("deletes are replicated", func(t *testing.T) {
		require.NoError(t, r.Delete(ctx, "cacheA", "k1"))
		inv := invoker.invocations[len(invoker.invocations)-1]
		assert.Equal(t, &pb.DeleteCommand{Resource: "cacheA", Key: "k1"}, inv.Command)
	})
}

func TestFirstValue(t *testing.T) {
	f := &firstValue{}
	assert.True(t, f.NeedMoreResponses())
	assert.False(t, f.IsAcceptable(nil, cluster.FromNative("b")))
	assert.False(t, f.IsAcceptable(&rpc.UnsuccessfulResponse{}, cluster.FromNative("b")))
	assert.True(t, f.NeedMoreResponses())
	assert.True(t, f.IsAcceptable(&rpc.SuccessfulResponse{Value: []byte("v")}, cluster.FromNative("c")))
	assert.False(t, f.NeedMoreResponses())
}

func TestReplicated_LocalCluster(t *testing.T) {
	ctx := context.Background()
	network := local.NewNetwork()
	newNode := func(name string) (*transport.Transport, *BoltStore) {
		db := openStore(t)
		tr := transport.New(zap.NewNop(), transport.Config{
			Global: config.Global{ClusterName: "grid", DistributedSyncTimeout: time.Second},
			Fs:     afero.NewMemMapFs(),
			ChannelFactory: func(logger *zap.Logger, stack config.Stack) (channel.Channel, error) {
				return network.NewChannel(logger, name, stack.StreamingStateTransfer), nil
			},
			Handler:       NewHandler(zap.NewNop(), db),
			StateProvider: db,
		})
		require.NoError(t, tr.Start())
		t.Cleanup(tr.Stop)
		return tr, db
	}
	a, dbA := newNode("a")
	b, dbB := newNode("b")
	replicatedA := NewReplicated(dbA, a, rpc.Synchronous, time.Second)
	replicatedB := NewReplicated(dbB, b, rpc.Synchronous, time.Second)

	t.Run("writes reach every member", func(t *testing.T) {
		require.NoError(t, replicatedA.Put(ctx, "cacheA", "k1", []byte("v1")))
		value, err := dbB.Get("cacheA", "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)
	})
	t.Run("reads fall back on other members", func(t *testing.T) {
		require.NoError(t, dbB.Put("cacheA", "only-b", []byte("vb")))
		value, err := replicatedA.Get(ctx, "cacheA", "only-b")
		require.NoError(t, err)
		assert.Equal(t, []byte("vb"), value)
	})
	t.Run("deletes reach every member", func(t *testing.T) {
		require.NoError(t, replicatedB.Delete(ctx, "cacheA", "k1"))
		_, err := dbA.Get("cacheA", "k1")
		assert.Equal(t, ErrKeyNotFound, err)
	})
	t.Run("joiners pull resource state", func(t *testing.T) {
		c, dbC := newNode("c")
		ok, err := c.RetrieveState(ctx, "cacheA", a.Address(), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		value, err := dbC.Get("cacheA", "only-b")
		assert.Equal(t, ErrKeyNotFound, err)
		assert.Nil(t, value)
		require.NoError(t, dbA.Put("cacheA", "k4", []byte("v4")))
		ok, err = c.RetrieveState(ctx, "cacheA", a.Address(), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		value, err = dbC.Get("cacheA", "k4")
		require.NoError(t, err)
		assert.Equal(t, []byte("v4"), value)
	})
}

type delayedGets struct {
	handler rpc.Handler
	delay   time.Duration
}

func (d *delayedGets) Handle(ctx context.Context, sender cluster.Address, command interface{}) (interface{}, error) {
	if _, ok := command.(*pb.GetCommand); ok {
		time.Sleep(d.delay)
	}
	return d.handler.Handle(ctx, sender, command)
}

func TestReplicated_MajorityRead(t *testing.T) {
	ctx := context.Background()
	network := local.NewNetwork()
	newNode := func(name string, delay time.Duration) (*transport.Transport, *BoltStore) {
		db := openStore(t)
		tr := transport.New(zap.NewNop(), transport.Config{
			Global: config.Global{ClusterName: "grid", DistributedSyncTimeout: time.Second},
			Fs:     afero.NewMemMapFs(),
			ChannelFactory: func(logger *zap.Logger, stack config.Stack) (channel.Channel, error) {
				return network.NewChannel(logger, name, stack.StreamingStateTransfer), nil
			},
			Handler: &delayedGets{handler: NewHandler(zap.NewNop(), db), delay: delay},
		})
		require.NoError(t, tr.Start())
		t.Cleanup(tr.Stop)
		return tr, db
	}
	reader, dbReader := newNode("reader", 0)
	newNode("empty-1", 0)
	newNode("empty-2", 0)
	_, dbHolder := newNode("holder", 200*time.Millisecond)
	require.Len(t, reader.Members(), 4)
	replicated := NewReplicated(dbReader, reader, rpc.Synchronous, 2*time.Second)

	t.Run("a late holder answers after empty members", func(t *testing.T) {
		require.NoError(t, dbHolder.Put("cacheA", "k1", []byte("v1")))
		value, err := replicated.Get(ctx, "cacheA", "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)
	})
	t.Run("keys held by no member", func(t *testing.T) {
		_, err := replicated.Get(ctx, "cacheA", "missing")
		assert.Equal(t, ErrKeyNotFound, err)
	})
}
