package rpc

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/distsync"
	"go.uber.org/zap"
)

// memoryMarshaller hands out opaque handles to the values it was given.
type memoryMarshaller struct {
	mtx    sync.Mutex
	values []interface{}
}

func (m *memoryMarshaller) Marshal(v interface{}) ([]byte, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.values = append(m.values, v)
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(len(m.values)-1))
	return b, nil
}

func (m *memoryMarshaller) Unmarshal(b []byte) (interface{}, error) {
	if len(b) != 8 {
		return nil, errors.New("invalid handle")
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	idx := binary.BigEndian.Uint64(b)
	if idx >= uint64(len(m.values)) {
		return nil, errors.New("unknown handle")
	}
	return m.values[idx], nil
}

type recordingChannel struct {
	channel.Channel
	mtx      sync.Mutex
	handler  channel.RequestHandler
	requests []channel.Request
	sent     chan channel.Request
	reply    func(req channel.Request) []channel.Rsp
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{sent: make(chan channel.Request, 16)}
}

func (c *recordingChannel) SetRequestHandler(h channel.RequestHandler) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.handler = h
}

func (c *recordingChannel) Send(ctx context.Context, req channel.Request) ([]channel.Rsp, error) {
	c.mtx.Lock()
	c.requests = append(c.requests, req)
	reply := c.reply
	c.mtx.Unlock()
	c.sent <- req
	if reply == nil {
		return nil, nil
	}
	return reply(req), nil
}

type countingFilter struct {
	seen []cluster.Address
}

func (f *countingFilter) IsAcceptable(response Response, sender cluster.Address) bool {
	f.seen = append(f.seen, sender)
	return response != nil && response.IsSuccessful()
}
func (f *countingFilter) NeedMoreResponses() bool { return len(f.seen) < 1 }

func TestResponseMode(t *testing.T) {
	assert.Equal(t, channel.GetNone, FireAndForget.SendMode())
	assert.Equal(t, channel.GetNone, SynchronousWithAsyncMarshalling.SendMode())
	assert.Equal(t, channel.GetAll, Synchronous.SendMode())
	assert.Equal(t, channel.GetMajority, WaitForFirstValid.SendMode())
	assert.True(t, FireAndForget.IsAsynchronous())
	assert.True(t, SynchronousWithAsyncMarshalling.IsAsynchronous())
	assert.False(t, Synchronous.IsAsynchronous())
	assert.Panics(t, func() { ResponseMode(42).SendMode() })
}

func TestDispatcher_InvokeRemoteCommands(t *testing.T) {
	ctx := context.Background()
	a, b, c := cluster.FromNative("a"), cluster.FromNative("b"), cluster.FromNative("c")

	t.Run("empty recipients send nothing", func(t *testing.T) {
		ch := newRecordingChannel()
		d := NewDispatcher(zap.NewNop(), ch, DispatcherConfig{Marshaller: &memoryMarshaller{}})
		out, err := d.InvokeRemoteCommands(ctx, []cluster.Address{}, "cmd", Synchronous, time.Second, false, nil, false)
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Empty(t, ch.requests)
	})
	t.Run("responses are decoded per recipient", func(t *testing.T) {
		ch := newRecordingChannel()
		m := &memoryMarshaller{}
		d := NewDispatcher(zap.NewNop(), ch, DispatcherConfig{Marshaller: m})
		ok, _ := m.Marshal(&SuccessfulResponse{Value: "v"})
		ch.reply = func(req channel.Request) []channel.Rsp {
			return []channel.Rsp{
				{Sender: "a", Received: true, Value: ok},
				{Sender: "b", Suspected: true},
				{Sender: "c"},
			}
		}
		out, err := d.InvokeRemoteCommands(ctx, []cluster.Address{a, b, c}, "cmd", Synchronous, time.Second, true, nil, false)
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, RawResponse{Sender: a, State: Received, Value: &SuccessfulResponse{Value: "v"}}, out[0])
		assert.Equal(t, Suspected, out[1].State)
		assert.Equal(t, NotReceived, out[2].State)

		sent := ch.requests[0]
		assert.Equal(t, []channel.Addr{"a", "b", "c"}, sent.Destinations)
		assert.Equal(t, channel.GetAll, sent.Mode)
		assert.True(t, sent.OOB)
		envelope, err := m.Unmarshal(sent.Payload)
		require.NoError(t, err)
		assert.Equal(t, &Request{Command: "cmd"}, envelope)
	})
	t.Run("nil recipients broadcast", func(t *testing.T) {
		ch := newRecordingChannel()
		d := NewDispatcher(zap.NewNop(), ch, DispatcherConfig{Marshaller: &memoryMarshaller{}})
		_, err := d.InvokeRemoteCommands(ctx, nil, "cmd", WaitForFirstValid, time.Second, false, nil, true)
		require.NoError(t, err)
		assert.Nil(t, ch.requests[0].Destinations)
		assert.Equal(t, channel.GetMajority, ch.requests[0].Mode)
	})
	t.Run("filter sees decoded responses", func(t *testing.T) {
		ch := newRecordingChannel()
		m := &memoryMarshaller{}
		d := NewDispatcher(zap.NewNop(), ch, DispatcherConfig{Marshaller: m})
		ok, _ := m.Marshal(&SuccessfulResponse{Value: "v"})
		filter := &countingFilter{}
		ch.reply = func(req channel.Request) []channel.Rsp {
			require.NotNil(t, req.Filter)
			assert.True(t, req.Filter.IsAcceptable(ok, "b"))
			assert.False(t, req.Filter.NeedMoreResponses())
			return nil
		}
		_, err := d.InvokeRemoteCommands(ctx, []cluster.Address{b}, "cmd", Synchronous, time.Second, false, filter, false)
		require.NoError(t, err)
		assert.Equal(t, []cluster.Address{b}, filter.seen)
	})
	t.Run("async marshalling returns before sending", func(t *testing.T) {
		ch := newRecordingChannel()
		d := NewDispatcher(zap.NewNop(), ch, DispatcherConfig{Marshaller: &memoryMarshaller{}})
		out, err := d.InvokeRemoteCommands(ctx, []cluster.Address{a}, "cmd", SynchronousWithAsyncMarshalling, time.Second, false, nil, false)
		require.NoError(t, err)
		assert.Empty(t, out)
		select {
		case req := <-ch.sent:
			assert.Equal(t, channel.GetNone, req.Mode)
		case <-time.After(time.Second):
			t.Fatal("command was not sent")
		}
	})
	t.Run("fire and forget", func(t *testing.T) {
		ch := newRecordingChannel()
		d := NewDispatcher(zap.NewNop(), ch, DispatcherConfig{Marshaller: &memoryMarshaller{}})
		out, err := d.InvokeRemoteCommands(ctx, []cluster.Address{a}, "cmd", FireAndForget, time.Second, false, nil, false)
		require.NoError(t, err)
		assert.Empty(t, out)
		require.Len(t, ch.requests, 1)
		assert.Equal(t, channel.GetNone, ch.requests[0].Mode)
	})
	t.Run("stopped dispatcher", func(t *testing.T) {
		ch := newRecordingChannel()
		d := NewDispatcher(zap.NewNop(), ch, DispatcherConfig{Marshaller: &memoryMarshaller{}})
		d.Stop()
		assert.Nil(t, ch.handler)
		_, err := d.InvokeRemoteCommands(ctx, nil, "cmd", Synchronous, time.Second, false, nil, false)
		assert.Equal(t, channel.ErrClosed, err)
	})
}

func TestDispatcher_HandleRequest(t *testing.T) {
	ctx := context.Background()
	serve := func(t *testing.T, config DispatcherConfig, request *Request) Response {
		m := &memoryMarshaller{}
		config.Marshaller = m
		d := NewDispatcher(zap.NewNop(), newRecordingChannel(), config)
		payload, err := m.Marshal(request)
		require.NoError(t, err)
		out, err := m.Unmarshal(d.HandleRequest(ctx, "a", payload))
		require.NoError(t, err)
		return asResponse(out)
	}
	echo := HandlerFunc(func(ctx context.Context, sender cluster.Address, command interface{}) (interface{}, error) {
		return command, nil
	})

	t.Run("handler result", func(t *testing.T) {
		out := serve(t, DispatcherConfig{Handler: echo}, &Request{Command: "ping"})
		assert.Equal(t, &SuccessfulResponse{Value: "ping"}, out)
	})
	t.Run("handler error", func(t *testing.T) {
		failure := errors.New("boom")
		out := serve(t, DispatcherConfig{Handler: HandlerFunc(func(context.Context, cluster.Address, interface{}) (interface{}, error) {
			return nil, failure
		})}, &Request{Command: "ping"})
		assert.Equal(t, &ExceptionResponse{Err: failure}, out)
	})
	t.Run("nil result", func(t *testing.T) {
		out := serve(t, DispatcherConfig{Handler: HandlerFunc(func(context.Context, cluster.Address, interface{}) (interface{}, error) {
			return nil, nil
		})}, &Request{Command: "ping"})
		assert.Nil(t, out)
	})
	t.Run("non replayable commands are refused during a flush", func(t *testing.T) {
		dsync := distsync.New()
		dsync.AcquireSync()
		defer dsync.ReleaseSync()
		out := serve(t, DispatcherConfig{Handler: echo, Sync: dsync, SyncTimeout: 10 * time.Millisecond}, &Request{Command: "ping"})
		exception, ok := out.(*ExceptionResponse)
		require.True(t, ok)
		assert.True(t, IsReplicationError(exception.Err))
	})
	t.Run("replayable commands wait for the flush", func(t *testing.T) {
		dsync := distsync.New()
		dsync.AcquireSync()
		go func() {
			time.Sleep(20 * time.Millisecond)
			dsync.ReleaseSync()
		}()
		out := serve(t, DispatcherConfig{Handler: echo, Sync: dsync, SyncTimeout: time.Second}, &Request{Command: "ping", Replayable: true})
		assert.Equal(t, &SuccessfulResponse{Value: "ping"}, out)
	})
	t.Run("commands hold a processing slot", func(t *testing.T) {
		dsync := distsync.New()
		held := HandlerFunc(func(ctx context.Context, sender cluster.Address, command interface{}) (interface{}, error) {
			err := dsync.AcquireProcessingLock(ctx, true, 10*time.Millisecond)
			assert.True(t, errors.Is(err, distsync.ErrTimeout))
			return "done", nil
		})
		out := serve(t, DispatcherConfig{Handler: held, Sync: dsync, SyncTimeout: time.Second}, &Request{Command: "ping"})
		assert.Equal(t, &SuccessfulResponse{Value: "done"}, out)
		assert.NoError(t, dsync.AcquireProcessingLock(ctx, true, 10*time.Millisecond))
	})
	t.Run("undecodable payload", func(t *testing.T) {
		m := &memoryMarshaller{}
		d := NewDispatcher(zap.NewNop(), newRecordingChannel(), DispatcherConfig{Marshaller: m, Handler: echo})
		out, err := m.Unmarshal(d.HandleRequest(ctx, "a", []byte("garbage")))
		require.NoError(t, err)
		_, ok := out.(*ExceptionResponse)
		assert.True(t, ok)
	})
}
