// Package local provides an in-process channel. Channels created from the same Network
// and connected to the same cluster name see each other as members, in join order.
package local

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vx-labs/grid/channel"
	"go.uber.org/zap"
)

type group struct {
	viewID  uint64
	members []*Channel
}

// Network connects local channels together.
type Network struct {
	// delivery serializes view installations.
	delivery sync.Mutex
	mtx      sync.Mutex
	groups   map[string]*group
}

func NewNetwork() *Network {
	return &Network{groups: map[string]*group{}}
}

func (n *Network) lookup(clusterName string, addr channel.Addr) *Channel {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	g, ok := n.groups[clusterName]
	if !ok {
		return nil
	}
	for _, member := range g.members {
		if member.addr == addr {
			return member
		}
	}
	return nil
}

// update applies fn to the member list of clusterName, and delivers the resulting view
// to the remaining members.
func (n *Network) update(clusterName string, fn func(members []*Channel) []*Channel) {
	n.delivery.Lock()
	defer n.delivery.Unlock()

	n.mtx.Lock()
	g, ok := n.groups[clusterName]
	if !ok {
		g = &group{}
		n.groups[clusterName] = g
	}
	g.members = fn(g.members)
	g.viewID++
	view := channel.View{ID: g.viewID, Members: make([]channel.Addr, len(g.members))}
	for idx, member := range g.members {
		view.Members[idx] = member.addr
	}
	recipients := make([]*Channel, len(g.members))
	copy(recipients, g.members)
	if len(g.members) == 0 {
		delete(n.groups, clusterName)
	}
	n.mtx.Unlock()

	for _, member := range recipients {
		member.installView(view)
	}
}

type Channel struct {
	network       *Network
	addr          channel.Addr
	logger        *zap.Logger
	stateTransfer bool

	mtx         sync.RWMutex
	receiver    channel.Receiver
	handler     channel.RequestHandler
	options     map[channel.Option]bool
	clusterName string
	connected   bool
	closed      bool
	view        channel.View
}

// NewChannel creates a channel on n. An empty name is replaced with a random one.
func (n *Network) NewChannel(logger *zap.Logger, name string, stateTransfer bool) *Channel {
	if name == "" {
		name = uuid.New().String()
	}
	return &Channel{
		network:       n,
		addr:          channel.Addr(name),
		logger:        logger.With(zap.String("member", name)),
		stateTransfer: stateTransfer,
		options:       map[channel.Option]bool{},
	}
}

var _ channel.Channel = &Channel{}

func (c *Channel) SetReceiver(r channel.Receiver) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.receiver = r
}

func (c *Channel) SetRequestHandler(h channel.RequestHandler) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.handler = h
}

func (c *Channel) SetOption(opt channel.Option, value bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.options[opt] = value
}

func (c *Channel) Option(opt channel.Option) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.options[opt]
}

func (c *Channel) Connect(clusterName string) error {
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return channel.ErrClosed
	}
	if c.connected {
		c.mtx.Unlock()
		return errors.Errorf("already connected to cluster %q", c.clusterName)
	}
	c.clusterName = clusterName
	c.connected = true
	c.mtx.Unlock()
	c.network.update(clusterName, func(members []*Channel) []*Channel {
		return append(members, c)
	})
	c.logger.Debug("joined cluster", zap.String("cluster_name", clusterName))
	if c.Option(channel.OptionAutoGetState) {
		view := c.View()
		if len(view.Members) > 0 && view.Members[0] != c.addr {
			if err := c.RequestState(context.Background(), view.Members[0], "", 0); err != nil {
				c.logger.Warn("failed to fetch node state", zap.Error(err))
			}
		}
	}
	return nil
}

func (c *Channel) Disconnect() error {
	c.mtx.Lock()
	if !c.connected {
		c.mtx.Unlock()
		return nil
	}
	clusterName := c.clusterName
	c.connected = false
	c.view = channel.View{}
	c.mtx.Unlock()
	c.network.update(clusterName, func(members []*Channel) []*Channel {
		out := members[:0:0]
		for _, member := range members {
			if member != c {
				out = append(out, member)
			}
		}
		return out
	})
	return nil
}

func (c *Channel) Close() error {
	if err := c.Disconnect(); err != nil {
		return err
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.closed = true
	return nil
}

func (c *Channel) IsOpen() bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.connected && !c.closed
}

func (c *Channel) LocalAddress() channel.Addr {
	return c.addr
}

func (c *Channel) View() channel.View {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.view
}

func (c *Channel) SupportsStateTransfer() bool {
	return c.stateTransfer
}

func (c *Channel) installView(view channel.View) {
	c.mtx.Lock()
	if !c.connected {
		c.mtx.Unlock()
		return
	}
	c.view = view
	receiver := c.receiver
	block := c.options[channel.OptionBlock]
	c.mtx.Unlock()
	if receiver == nil {
		return
	}
	if block {
		receiver.Block()
	}
	receiver.ViewAccepted(view)
	if block {
		receiver.Unblock()
	}
}

func (c *Channel) isMember(addr channel.Addr) bool {
	for _, member := range c.View().Members {
		if member == addr {
			return true
		}
	}
	return false
}

func (c *Channel) Send(ctx context.Context, req channel.Request) ([]channel.Rsp, error) {
	if !c.IsOpen() {
		return nil, channel.ErrClosed
	}
	dests := req.Destinations
	if dests == nil {
		local := c.Option(channel.OptionLocal)
		for _, member := range c.View().Members {
			if member != c.addr || local {
				dests = append(dests, member)
			}
		}
	}
	c.mtx.RLock()
	clusterName := c.clusterName
	c.mtx.RUnlock()
	return channel.Gather(ctx, req, dests, c.isMember, func(ctx context.Context, dest channel.Addr) ([]byte, error) {
		peer := c.network.lookup(clusterName, dest)
		if peer == nil {
			return nil, channel.ErrUnreachable
		}
		return peer.serve(ctx, c.addr, req.Payload)
	}), nil
}

func (c *Channel) serve(ctx context.Context, sender channel.Addr, payload []byte) ([]byte, error) {
	c.mtx.RLock()
	handler := c.handler
	c.mtx.RUnlock()
	if handler == nil {
		return nil, nil
	}
	type result struct{ value []byte }
	done := make(chan result, 1)
	go func() {
		done <- result{value: handler.HandleRequest(ctx, sender, payload)}
	}()
	select {
	case res := <-done:
		return res.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestState streams the state stateID from source into the local receiver. The
// transfer runs in the background; it is aborted when ctx is done.
func (c *Channel) RequestState(ctx context.Context, source channel.Addr, stateID string, timeout time.Duration) error {
	if !c.IsOpen() {
		return channel.ErrClosed
	}
	if !c.isMember(source) {
		return errors.Wrapf(channel.ErrNotMember, "state source %s", source)
	}
	c.mtx.RLock()
	clusterName, receiver := c.clusterName, c.receiver
	c.mtx.RUnlock()
	peer := c.network.lookup(clusterName, source)
	if peer == nil {
		return channel.ErrUnreachable
	}
	peer.mtx.RLock()
	producer := peer.receiver
	peer.mtx.RUnlock()
	if producer == nil || receiver == nil {
		return channel.ErrUnreachable
	}
	var cancel context.CancelFunc = func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	r, w := io.Pipe()
	done := make(chan struct{})
	go func() {
		if stateID != "" {
			producer.WriteResourceState(stateID, w)
			return
		}
		w.CloseWithError(producer.WriteState(w))
	}()
	go func() {
		defer close(done)
		if stateID == "" {
			defer r.Close()
			if err := receiver.ApplyState(r); err != nil {
				c.logger.Warn("failed to apply node state", zap.Error(err))
			}
			return
		}
		receiver.ApplyResourceState(stateID, r)
	}()
	go func() {
		defer cancel()
		select {
		case <-done:
		case <-ctx.Done():
			r.CloseWithError(ctx.Err())
			w.CloseWithError(ctx.Err())
		}
	}()
	return nil
}
