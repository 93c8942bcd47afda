package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/config"
	"github.com/vx-labs/grid/marshal"
	"github.com/vx-labs/grid/rpc"
	"go.uber.org/zap"
)

// scriptedChannel is a channel whose responses are decided by the test.
type scriptedChannel struct {
	mtx        sync.Mutex
	addr       channel.Addr
	options    map[channel.Option]bool
	receiver   channel.Receiver
	handler    channel.RequestHandler
	open       bool
	closed     bool
	connectErr error
	closeErr   error
	requests   []channel.Request
	send       func(req channel.Request) ([]channel.Rsp, error)
	stateReqs  []string
}

func newScriptedChannel(addr channel.Addr) *scriptedChannel {
	return &scriptedChannel{addr: addr, options: map[channel.Option]bool{}}
}

func (c *scriptedChannel) SetReceiver(r channel.Receiver) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.receiver = r
}
func (c *scriptedChannel) SetRequestHandler(h channel.RequestHandler) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.handler = h
}
func (c *scriptedChannel) SetOption(opt channel.Option, value bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.options[opt] = value
}
func (c *scriptedChannel) Option(opt channel.Option) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.options[opt]
}
func (c *scriptedChannel) Connect(clusterName string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.open = true
	return nil
}
func (c *scriptedChannel) Disconnect() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.open = false
	return nil
}
func (c *scriptedChannel) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.open = false
	c.closed = true
	return c.closeErr
}
func (c *scriptedChannel) IsOpen() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.open
}
func (c *scriptedChannel) LocalAddress() channel.Addr { return c.addr }
func (c *scriptedChannel) View() channel.View         { return channel.View{} }
func (c *scriptedChannel) Send(ctx context.Context, req channel.Request) ([]channel.Rsp, error) {
	c.mtx.Lock()
	c.requests = append(c.requests, req)
	send := c.send
	c.mtx.Unlock()
	if send == nil {
		return nil, nil
	}
	return send(req)
}
func (c *scriptedChannel) RequestState(ctx context.Context, source channel.Addr, stateID string, timeout time.Duration) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.stateReqs = append(c.stateReqs, stateID)
	if !c.open {
		return channel.ErrClosed
	}
	return nil
}
func (c *scriptedChannel) SupportsStateTransfer() bool { return true }

func (c *scriptedChannel) sentRequests() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.requests)
}

func factoryFor(ch channel.Channel) ChannelFactory {
	return func(*zap.Logger, config.Stack) (channel.Channel, error) {
		return ch, nil
	}
}

func testConfig(factory ChannelFactory) Config {
	return Config{
		Global: config.Global{
			ClusterName:            "grid",
			DistributedSyncTimeout: 200 * time.Millisecond,
		},
		Fs:             afero.NewMemMapFs(),
		ChannelFactory: factory,
	}
}

func startScripted(addr channel.Addr, tweak func(*Config)) (*Transport, *scriptedChannel, error) {
	ch := newScriptedChannel(addr)
	cfg := testConfig(factoryFor(ch))
	if tweak != nil {
		tweak(&cfg)
	}
	tr := New(zap.NewNop(), cfg)
	return tr, ch, tr.Start()
}

func encode(v interface{}) []byte {
	b, err := marshal.New().Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func received(sender channel.Addr, response rpc.Response) channel.Rsp {
	return channel.Rsp{Sender: sender, Received: true, Value: encode(response)}
}

func addresses(names ...string) []cluster.Address {
	out := make([]cluster.Address, len(names))
	for idx := range names {
		out[idx] = cluster.FromNative(channel.Addr(names[idx]))
	}
	return out
}

func natives(names ...string) []channel.Addr {
	out := make([]channel.Addr, len(names))
	for idx := range names {
		out[idx] = channel.Addr(names[idx])
	}
	return out
}

var errBoom = errors.New("boom")

type recordingListener struct {
	mtx           sync.Mutex
	notifications [][]cluster.Address
	selves        []cluster.Address
	coordinator   []bool
	transport     *Transport
}

func (l *recordingListener) MembershipChanged(members []cluster.Address, self cluster.Address) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.notifications = append(l.notifications, members)
	l.selves = append(l.selves, self)
	if l.transport != nil {
		l.coordinator = append(l.coordinator, l.transport.IsCoordinator())
	}
}
