// Package transport turns a messaging channel into a cluster transport: it tracks the
// membership and the coordinator, invokes commands on remote members and aggregates
// their responses, and orchestrates per-resource state transfers.
package transport

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/config"
	"github.com/vx-labs/grid/distsync"
	"github.com/vx-labs/grid/marshal"
	"github.com/vx-labs/grid/rpc"
	"github.com/vx-labs/grid/statetransfer"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ChannelFactory builds the channel a transport runs on from its substrate settings.
type ChannelFactory func(logger *zap.Logger, stack config.Stack) (channel.Channel, error)

// StateProvider produces and applies the state of named resources.
type StateProvider interface {
	GenerateState(resource string, w io.Writer) error
	ApplyState(resource string, r io.Reader) error
}

// MembershipListener is notified of every installed view, with the local address.
type MembershipListener interface {
	MembershipChanged(members []cluster.Address, self cluster.Address)
}

// MembershipListenerFunc adapts a function to the MembershipListener interface.
type MembershipListenerFunc func(members []cluster.Address, self cluster.Address)

func (f MembershipListenerFunc) MembershipChanged(members []cluster.Address, self cluster.Address) {
	f(members, self)
}

type Config struct {
	config.Global
	// Fs is used to look configuration files up. It defaults to the OS filesystem.
	Fs             afero.Fs
	ChannelFactory ChannelFactory
	// Marshaller defaults to the protobuf marshaller.
	Marshaller    rpc.Marshaller
	Handler       rpc.Handler
	StateProvider StateProvider
	Listener      MembershipListener
	Registerer    prometheus.Registerer
	// EnableStatistics turns replication statistics on at creation.
	EnableStatistics bool
}

type Transport struct {
	config  Config
	logger  *zap.Logger
	metrics *metrics
	stats   statistics

	lifecycle  sync.Mutex
	mtx        sync.RWMutex
	ch         channel.Channel
	dispatcher *rpc.Dispatcher

	view        *cluster.MembershipView
	coordinator atomic.Bool
	dsync       *distsync.DistributedSync
	transfers   *statetransfer.Registry
}

func New(logger *zap.Logger, cfg Config) *Transport {
	cfg.Global = cfg.Global.WithDefaults()
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Marshaller == nil {
		cfg.Marshaller = marshal.New()
	}
	t := &Transport{
		config:    cfg,
		logger:    logger,
		metrics:   newMetrics(logger, cfg.Registerer),
		view:      cluster.NewMembershipView(),
		dsync:     distsync.New(),
		transfers: statetransfer.NewRegistry(),
	}
	t.stats.enabled.Store(cfg.EnableStatistics)
	return t
}

var _ channel.Receiver = &Transport{}

func (t *Transport) channel() channel.Channel {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.ch
}

func (t *Transport) currentDispatcher() *rpc.Dispatcher {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.dispatcher
}

// Start builds the channel and joins the cluster. Failures are not retried.
func (t *Transport) Start() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.channel() != nil {
		return nil
	}
	if err := t.config.Global.Validate(); err != nil {
		return errors.Wrap(err, "invalid transport configuration")
	}
	if t.config.ChannelFactory == nil {
		return errors.New("no channel factory configured")
	}
	stack, err := config.Load(t.config.Fs, t.config.Global)
	if err != nil {
		return errors.Wrap(err, "unable to load channel configuration")
	}
	t.logger.Info("loaded channel configuration",
		zap.String("configuration_source", stack.Source.String()),
		zap.String("configuration_origin", stack.Origin))
	ch, err := t.config.ChannelFactory(t.logger, stack)
	if err != nil {
		return errors.Wrap(err, "unable to create channel")
	}
	ch.SetOption(channel.OptionLocal, false)
	ch.SetOption(channel.OptionAutoReconnect, true)
	ch.SetOption(channel.OptionAutoGetState, false)
	ch.SetOption(channel.OptionBlock, true)
	ch.SetReceiver(t)
	dispatcher := rpc.NewDispatcher(t.logger, ch, rpc.DispatcherConfig{
		Marshaller:  t.config.Marshaller,
		Handler:     t.config.Handler,
		Sync:        t.dsync,
		SyncTimeout: t.config.DistributedSyncTimeout,
	})

	t.mtx.Lock()
	t.ch, t.dispatcher = ch, dispatcher
	t.mtx.Unlock()

	if err := ch.Connect(t.config.ClusterName); err != nil {
		dispatcher.Stop()
		if closeErr := ch.Close(); closeErr != nil {
			t.logger.Warn("failed to close channel", zap.Error(closeErr))
		}
		t.mtx.Lock()
		t.ch, t.dispatcher = nil, nil
		t.mtx.Unlock()
		return errors.Wrap(err, "unable to start channel")
	}
	t.logger.Info("transport started",
		zap.String("cluster_name", t.config.ClusterName),
		zap.String("node_address", t.Address().String()))
	return nil
}

// Stop leaves the cluster and releases the channel. It is safe to call several times.
func (t *Transport) Stop() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	t.mtx.Lock()
	ch, dispatcher := t.ch, t.dispatcher
	t.ch, t.dispatcher = nil, nil
	t.mtx.Unlock()
	if ch == nil {
		return
	}
	if err := ch.Disconnect(); err != nil {
		t.logger.Error("failed to disconnect channel", zap.Error(err))
	}
	if err := ch.Close(); err != nil {
		t.logger.Error("failed to close channel", zap.Error(err))
	}
	dispatcher.Stop()
	t.view.Install([]cluster.Address{}, func([]cluster.Address, bool) {
		t.coordinator.Store(false)
		t.metrics.coordinator.Set(0)
		t.metrics.members.Set(0)
	})
	t.logger.Info("transport stopped")
}

// Address returns the address of the local node, or the zero Address when the
// transport is not started.
func (t *Transport) Address() cluster.Address {
	ch := t.channel()
	if ch == nil {
		return cluster.Address{}
	}
	return cluster.FromNative(ch.LocalAddress())
}

func (t *Transport) IsCoordinator() bool {
	return t.coordinator.Load()
}

// Coordinator blocks until a non-empty view was installed, and returns its first member.
func (t *Transport) Coordinator(ctx context.Context) (cluster.Address, error) {
	if t.channel() == nil {
		return cluster.Address{}, ErrNotStarted
	}
	return t.view.WaitForCoordinator(ctx)
}

// Members returns the current view. It is empty until the first view is installed.
func (t *Transport) Members() []cluster.Address {
	return t.view.Members()
}

func (t *Transport) DistributedSync() *distsync.DistributedSync {
	return t.dsync
}

// SupportsStateTransfer reports whether the channel is open and able to stream state.
func (t *Transport) SupportsStateTransfer() bool {
	ch := t.channel()
	if ch == nil || !ch.IsOpen() {
		t.logger.Error("channel is not open: state transfer is not available")
		return false
	}
	if !ch.SupportsStateTransfer() {
		t.logger.Error("channel does not support streaming state transfer")
		return false
	}
	return true
}

// Health reports the node health served on /health: "critical" when the channel is
// not open, "warning" while the node is alone in its view.
func (t *Transport) Health() string {
	ch := t.channel()
	if ch == nil || !ch.IsOpen() {
		return "critical"
	}
	if len(t.Members()) <= 1 {
		return "warning"
	}
	return "ok"
}
