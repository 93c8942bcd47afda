// Package mesh implements the production channel: hashicorp/memberlist provides the
// membership and failure detection, requests and state transfers travel over gRPC.
package mesh

import (
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
	"github.com/pkg/errors"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/channel/mesh/pb"
	"github.com/vx-labs/grid/channel/mesh/pool"
	"github.com/vx-labs/grid/config"
	"github.com/vx-labs/grid/network"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	defaultChunkSize         = 64 * 1024
	defaultJoinTimeout       = 30 * time.Second
	defaultReconnectInterval = 10 * time.Second
	leaveTimeout             = 5 * time.Second
)

// PeerSource returns the gossip addresses of the peers to join.
type PeerSource interface {
	Peers(ctx context.Context) ([]string, error)
}

// Config holds the settings of a mesh channel.
type Config struct {
	NodeName          string
	BindAddress       string
	BindPort          int
	AdvertiseAddress  string
	AdvertisePort     int
	RPCPort           int
	Peers             PeerSource
	StateTransfer     bool
	ChunkSize         int
	JoinTimeout       time.Duration
	ReconnectInterval time.Duration
}

// FromStack builds a channel configuration from the substrate settings.
func FromStack(nodeName string, stack config.Stack, peers PeerSource) Config {
	return Config{
		NodeName:         nodeName,
		BindAddress:      stack.BindAddress,
		BindPort:         stack.BindPort,
		AdvertiseAddress: stack.AdvertiseAddress,
		AdvertisePort:    stack.AdvertisePort,
		RPCPort:          stack.RPCPort,
		Peers:            peers,
		StateTransfer:    stack.StreamingStateTransfer,
		ChunkSize:        stack.StateChunkSize,
	}
}

type node struct {
	name string
	meta *pb.NodeMeta
	// gone is closed when the node leaves the gossip membership.
	gone chan struct{}
}

type Channel struct {
	config Config
	logger *zap.Logger
	addr   channel.Addr
	open   atomic.Bool

	// lifecycle serializes Connect and Disconnect.
	lifecycle   sync.Mutex
	mtx         sync.RWMutex
	receiver    channel.Receiver
	handler     channel.RequestHandler
	options     map[channel.Option]bool
	clusterName string
	connected   bool
	closed      bool
	view        channel.View
	meta        []byte
	mlist       *memberlist.Memberlist
	server      *grpc.Server
	cancel      context.CancelFunc

	// delivery serializes view installations.
	delivery sync.Mutex
	nodesMtx sync.Mutex
	nodes    map[string]*node
	queues   map[channel.Addr]*orderedQueue
	changed  chan struct{}

	bcastQueue *memberlist.TransmitLimitedQueue
	caller     *pool.Caller
	wg         sync.WaitGroup
}

var _ channel.Channel = &Channel{}

// New creates a mesh channel. Nothing is bound before Connect. An empty node name is
// replaced with a random one.
func New(logger *zap.Logger, config Config) *Channel {
	if config.NodeName == "" {
		config.NodeName = uuid.New().String()
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = defaultJoinTimeout
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = defaultReconnectInterval
	}
	c := &Channel{
		config:  config,
		logger:  logger.With(zap.String("node_id", config.NodeName)),
		addr:    channel.Addr(config.NodeName),
		options: map[channel.Option]bool{},
		nodes:   map[string]*node{},
		queues:  map[channel.Addr]*orderedQueue{},
		changed: make(chan struct{}, 1),
		caller:  pool.NewCaller(),
	}
	c.bcastQueue = &memberlist.TransmitLimitedQueue{
		NumNodes:       c.numMembers,
		RetransmitMult: 3,
	}
	return c
}

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

func (c *Channel) IsOpen() bool {
	return c.open.Load()
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
	return c.config.StateTransfer
}

func (c *Channel) rpcAddress(listener net.Listener) (string, error) {
	host := c.config.AdvertiseAddress
	if host == "" {
		host = c.config.BindAddress
	}
	if host == "" || net.ParseIP(host).IsUnspecified() {
		private, err := network.PrivateHost()
		if err != nil {
			return "", err
		}
		host = private
	}
	port := listener.Addr().(*net.TCPAddr).Port
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// Connect starts the gRPC server, creates the gossip membership and joins the peers
// returned by the peer source. A node that cannot reach any peer forms a cluster on
// its own.
func (c *Channel) Connect(clusterName string) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
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
	autoGetState := c.options[channel.OptionAutoGetState]
	c.mtx.Unlock()

	listener, err := net.Listen("tcp", net.JoinHostPort(c.config.BindAddress, strconv.Itoa(c.config.RPCPort)))
	if err != nil {
		return errors.Wrap(err, "failed to start rpc listener")
	}
	rpcAddress, err := c.rpcAddress(listener)
	if err != nil {
		listener.Close()
		return err
	}
	meta, err := encodeMeta(&pb.NodeMeta{
		ClusterName: clusterName,
		RPCAddress:  rpcAddress,
		Started:     time.Now().UnixNano(),
	})
	if err != nil {
		listener.Close()
		return errors.Wrap(err, "failed to encode node metadata")
	}
	c.mtx.Lock()
	c.meta = meta
	c.mtx.Unlock()
	server := grpc.NewServer(network.GRPCServerOptions()...)
	pb.RegisterMeshServer(server, c)
	go func() {
		if err := server.Serve(listener); err != nil {
			c.logger.Error("rpc server stopped", zap.Error(err))
		}
	}()

	mconfig, err := c.memberlistConfig()
	if err != nil {
		server.Stop()
		return err
	}
	// memberlist notifies the join of the local node while being created.
	c.open.Store(true)
	list, err := memberlist.Create(mconfig)
	if err != nil {
		c.open.Store(false)
		server.Stop()
		return errors.Wrap(err, "failed to create gossip membership")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.mtx.Lock()
	c.mlist = list
	c.server = server
	c.cancel = cancel
	c.connected = true
	c.mtx.Unlock()
	c.logger.Info("mesh channel started",
		zap.String("cluster_name", clusterName),
		zap.String("rpc_address", rpcAddress),
		zap.Int("gossip_port", mconfig.BindPort))

	if err := c.join(ctx); err != nil {
		c.logger.Warn("failed to join cluster, running alone", zap.Error(err))
	}
	c.refreshView()
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.watchViews(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.reconnect(ctx)
	}()
	if autoGetState {
		view := c.View()
		if len(view.Members) > 0 && view.Members[0] != c.addr {
			if err := c.RequestState(ctx, view.Members[0], "", c.config.JoinTimeout); err != nil {
				c.logger.Warn("failed to fetch node state", zap.Error(err))
			}
		}
	}
	return nil
}

func (c *Channel) memberlistConfig() (*memberlist.Config, error) {
	config := memberlist.DefaultLANConfig()
	config.Name = c.config.NodeName
	if c.config.BindAddress != "" {
		config.BindAddr = c.config.BindAddress
	}
	config.BindPort = c.config.BindPort
	if config.BindPort == 0 {
		port, err := network.RandomFreePort(config.BindAddr)
		if err != nil {
			return nil, errors.Wrap(err, "failed to pick a gossip port")
		}
		config.BindPort = port
	}
	config.AdvertiseAddr = c.config.AdvertiseAddress
	config.AdvertisePort = c.config.AdvertisePort
	if config.AdvertisePort == 0 {
		config.AdvertisePort = config.BindPort
	}
	config.Delegate = c
	config.Events = c
	if os.Getenv("ENABLE_MEMBERLIST_LOG") != "true" {
		config.LogOutput = ioutil.Discard
	}
	return config, nil
}

// Disconnect leaves the gossip membership and stops serving requests. The view is
// reset without notifying the receiver.
func (c *Channel) Disconnect() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.mtx.Lock()
	if !c.connected {
		c.mtx.Unlock()
		return nil
	}
	c.connected = false
	c.open.Store(false)
	mlist, server, cancel := c.mlist, c.server, c.cancel
	c.mlist, c.server, c.cancel = nil, nil, nil
	c.view = channel.View{}
	c.mtx.Unlock()

	cancel()
	c.wg.Wait()
	var err error
	if leaveErr := mlist.Leave(leaveTimeout); leaveErr != nil {
		err = errors.Wrap(leaveErr, "failed to leave cluster")
	}
	if shutdownErr := mlist.Shutdown(); shutdownErr != nil && err == nil {
		err = errors.Wrap(shutdownErr, "failed to stop gossip membership")
	}
	server.Stop()
	c.caller.Close()
	c.nodesMtx.Lock()
	for name, n := range c.nodes {
		close(n.gone)
		delete(c.nodes, name)
	}
	c.queues = map[channel.Addr]*orderedQueue{}
	c.nodesMtx.Unlock()
	c.logger.Info("mesh channel stopped")
	return err
}

func (c *Channel) Close() error {
	err := c.Disconnect()
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.closed = true
	return err
}

func (c *Channel) numMembers() int {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if len(c.view.Members) == 0 {
		return 1
	}
	return len(c.view.Members)
}

func (c *Channel) isMember(addr channel.Addr) bool {
	for _, member := range c.View().Members {
		if member == addr {
			return true
		}
	}
	return false
}

func (c *Channel) lookup(addr channel.Addr) *node {
	c.nodesMtx.Lock()
	defer c.nodesMtx.Unlock()
	return c.nodes[string(addr)]
}

// members returns the nodes of the cluster, oldest first. Nodes started at the same
// time are ordered by name so every member computes the same order.
func (c *Channel) members() []channel.Addr {
	c.mtx.RLock()
	clusterName := c.clusterName
	c.mtx.RUnlock()
	c.nodesMtx.Lock()
	candidates := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		if n.meta.ClusterName == clusterName {
			candidates = append(candidates, n)
		}
	}
	c.nodesMtx.Unlock()
	return sortMembers(candidates)
}

func sortMembers(nodes []*node) []channel.Addr {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].meta.Started == nodes[j].meta.Started {
			return nodes[i].name < nodes[j].name
		}
		return nodes[i].meta.Started < nodes[j].meta.Started
	})
	out := make([]channel.Addr, len(nodes))
	for idx := range nodes {
		out[idx] = channel.Addr(nodes[idx].name)
	}
	return out
}

func sameMembers(a, b []channel.Addr) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

// refreshView installs a new view when the membership changed since the last one.
func (c *Channel) refreshView() {
	c.delivery.Lock()
	defer c.delivery.Unlock()
	if !c.open.Load() {
		return
	}
	members := c.members()
	c.mtx.Lock()
	if sameMembers(members, c.view.Members) {
		c.mtx.Unlock()
		return
	}
	c.view = channel.View{ID: c.view.ID + 1, Members: members}
	view := c.view
	receiver := c.receiver
	block := c.options[channel.OptionBlock]
	c.mtx.Unlock()

	c.logger.Debug("installing view", zap.Uint64("view_id", view.ID), zap.Int("member_count", len(view.Members)))
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

func (c *Channel) watchViews(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.changed:
			c.refreshView()
		}
	}
}

func (c *Channel) notifyChange() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func (c *Channel) queueFor(sender channel.Addr) *orderedQueue {
	c.nodesMtx.Lock()
	defer c.nodesMtx.Unlock()
	q, ok := c.queues[sender]
	if !ok {
		q = &orderedQueue{}
		c.queues[sender] = q
	}
	return q
}

func (c *Channel) String() string {
	return fmt.Sprintf("mesh:%s", c.addr)
}
