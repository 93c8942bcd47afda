// Package cli bootstraps a grid node: flags, logger, channel factory, health and
// metrics endpoint, and signal handling.
package cli

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/channel/local"
	"github.com/vx-labs/grid/channel/mesh"
	"github.com/vx-labs/grid/config"
	"github.com/vx-labs/grid/discovery"
	"github.com/vx-labs/grid/network"
	"github.com/vx-labs/grid/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	FLAG_NAME_GOSSIP = "gossip"
	FLAG_NAME_RPC    = "rpc"
)

// BuiltVersion is set at link time.
var BuiltVersion = "snapshot"

func Version() string {
	return BuiltVersion
}

// localNetwork hosts the channels of the "local" stack kind.
var localNetwork = local.NewNetwork()

// AddClusterFlags registers the node flags on root and binds them into v.
func AddClusterFlags(root *cobra.Command, v *viper.Viper) {
	root.Flags().StringP("node-id", "", uuid.New().String(), "Unique node id")
	v.BindPFlag("node-id", root.Flags().Lookup("node-id"))
	root.Flags().StringP("cluster-name", "c", "grid", "Name of the cluster to join")
	v.BindPFlag("cluster-name", root.Flags().Lookup("cluster-name"))
	root.Flags().DurationP("sync-timeout", "", config.DefaultDistributedSyncTimeout, "Distributed sync timeout")
	v.BindPFlag("sync-timeout", root.Flags().Lookup("sync-timeout"))

	root.Flags().StringP("config-file", "f", "", "Channel configuration file")
	v.BindPFlag("config-file", root.Flags().Lookup("config-file"))
	root.Flags().StringP("config-markup", "", "", "Inline YAML channel configuration")
	v.BindPFlag("config-markup", root.Flags().Lookup("config-markup"))
	root.Flags().StringP("config-string", "", "", "Channel configuration as key=value pairs separated by semicolons")
	v.BindPFlag("config-string", root.Flags().Lookup("config-string"))

	root.Flags().StringSliceP("join", "j", []string{}, "Join this node")
	v.BindPFlag("join", root.Flags().Lookup("join"))
	root.Flags().StringP("discovery", "", "", "Peer discovery (static or consul)")
	v.BindPFlag("discovery", root.Flags().Lookup("discovery"))
	root.Flags().StringP("consul-service", "", "", "Consul service used for peer discovery")
	v.BindPFlag("consul-service", root.Flags().Lookup("consul-service"))

	root.Flags().IntP("health-port", "", 9000, "Serve /health and /metrics on this port")
	v.BindPFlag("health-port", root.Flags().Lookup("health-port"))

	network.RegisterFlagsForService(root, v, FLAG_NAME_GOSSIP, 7946)
	network.RegisterFlagsForService(root, v, FLAG_NAME_RPC, 7947)
}

type Context struct {
	ID      string
	Logger  *zap.Logger
	Config  *viper.Viper
	Command *cobra.Command

	mtx      sync.Mutex
	cleanups []func()
}

// Bootstrap builds the node logger. Set ENABLE_PRETTY_LOG=true for a human readable
// output.
func Bootstrap(cmd *cobra.Command, v *viper.Viper) (*Context, error) {
	id := v.GetString("node-id")
	if id == "" {
		id = uuid.New().String()
	}
	ctx := &Context{
		ID:      id,
		Config:  v,
		Command: cmd,
	}
	var logger *zap.Logger
	var err error
	fields := []zap.Field{
		zap.String("node_id", id), zap.String("version", Version()),
	}
	if allocID := os.Getenv("NOMAD_ALLOC_ID"); allocID != "" {
		fields = append(fields,
			zap.String("nomad_alloc_id", os.Getenv("NOMAD_ALLOC_ID")),
			zap.String("nomad_alloc_name", os.Getenv("NOMAD_ALLOC_NAME")),
			zap.String("nomad_alloc_index", os.Getenv("NOMAD_ALLOC_INDEX")),
		)
	}
	opts := []zap.Option{
		zap.Fields(fields...),
	}
	if os.Getenv("ENABLE_PRETTY_LOG") == "true" {
		logger, err = zap.NewDevelopment(opts...)
	} else {
		logger, err = zap.NewProduction(opts...)
	}
	if err != nil {
		return nil, err
	}
	ctx.Logger = logger
	return ctx, nil
}

// Global returns the transport settings read from the flags.
func (ctx *Context) Global() config.Global {
	return config.Global{
		ClusterName:            ctx.Config.GetString("cluster-name"),
		NodeName:               ctx.ID,
		DistributedSyncTimeout: ctx.Config.GetDuration("sync-timeout"),
		ConfigurationFile:      ctx.Config.GetString("config-file"),
		ConfigurationMarkup:    ctx.Config.GetString("config-markup"),
		ConfigurationString:    ctx.Config.GetString("config-string"),
	}
}

func (ctx *Context) changed(name string) bool {
	if ctx.Command == nil {
		return ctx.Config.IsSet(name)
	}
	flag := ctx.Command.Flags().Lookup(name)
	return flag != nil && flag.Changed
}

func (ctx *Context) listenerChanged(name string) bool {
	for _, suffix := range []string{"-bind-address", "-bind-port", "-advertised-address", "-advertised-port"} {
		if ctx.changed(name + suffix) {
			return true
		}
	}
	return false
}

// OverlayStack applies the flags explicitly set on the command line over stack.
func (ctx *Context) OverlayStack(stack config.Stack) (config.Stack, error) {
	if ctx.listenerChanged(FLAG_NAME_GOSSIP) {
		gossip, err := network.ConfigurationFromFlags(ctx.Config, FLAG_NAME_GOSSIP)
		if err != nil {
			return stack, err
		}
		ctx.Logger.Info(gossip.Describe())
		stack.BindAddress = gossip.BindAddress
		stack.BindPort = gossip.BindPort
		stack.AdvertiseAddress = gossip.AdvertisedAddress
		stack.AdvertisePort = gossip.AdvertisedPort
	}
	if ctx.listenerChanged(FLAG_NAME_RPC) {
		rpc, err := network.ConfigurationFromFlags(ctx.Config, FLAG_NAME_RPC)
		if err != nil {
			return stack, err
		}
		ctx.Logger.Info(rpc.Describe())
		stack.RPCPort = rpc.BindPort
	}
	if ctx.changed("join") {
		stack.JoinPeers = ctx.Config.GetStringSlice("join")
	}
	if ctx.changed("discovery") {
		stack.Discovery = ctx.Config.GetString("discovery")
	}
	if ctx.changed("consul-service") {
		stack.ConsulService = ctx.Config.GetString("consul-service")
	}
	return stack, nil
}

func advertisedGossipAddress(stack config.Stack) string {
	host := stack.AdvertiseAddress
	if host == "" {
		host = stack.BindAddress
	}
	if host == "" || net.ParseIP(host).IsUnspecified() {
		if private, err := network.PrivateHost(); err == nil {
			host = private
		}
	}
	port := stack.AdvertisePort
	if port == 0 {
		port = stack.BindPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ChannelFactory builds the channel selected by the stack kind: "mesh" for the
// memberlist and gRPC substrate, "local" for an in-process cluster.
func (ctx *Context) ChannelFactory() transport.ChannelFactory {
	return func(logger *zap.Logger, stack config.Stack) (channel.Channel, error) {
		stack, err := ctx.OverlayStack(stack)
		if err != nil {
			return nil, err
		}
		switch stack.Kind {
		case "local":
			return localNetwork.NewChannel(logger, ctx.ID, stack.StreamingStateTransfer), nil
		case "", "mesh":
		default:
			return nil, errors.Errorf("unknown channel kind %q", stack.Kind)
		}
		self := advertisedGossipAddress(stack)
		peers, err := discovery.FromStack(logger, stack, self)
		if err != nil {
			return nil, err
		}
		if registrar, ok := peers.(*discovery.Consul); ok {
			if err := registrar.Register(ctx.ID); err != nil {
				return nil, errors.Wrap(err, "failed to register node in consul")
			}
			ctx.OnShutdown(func() {
				if err := registrar.Deregister(ctx.ID); err != nil {
					logger.Warn("failed to deregister node from consul", zap.Error(err))
				}
			})
		}
		logger.Info("loaded gossip config",
			zap.String("bind_address", stack.BindAddress),
			zap.Int("bind_port", stack.BindPort),
			zap.String("advertised_address", self),
			zap.Int("rpc_port", stack.RPCPort),
			zap.String("discovery", stack.Discovery),
		)
		return mesh.New(logger, mesh.FromStack(ctx.ID, stack, peers)), nil
	}
}

// OnShutdown registers fn to be run, in reverse registration order, when Run returns.
func (ctx *Context) OnShutdown(fn func()) {
	ctx.mtx.Lock()
	defer ctx.mtx.Unlock()
	ctx.cleanups = append(ctx.cleanups, fn)
}

func (ctx *Context) shutdown() {
	ctx.mtx.Lock()
	cleanups := ctx.cleanups
	ctx.cleanups = nil
	ctx.mtx.Unlock()
	for idx := len(cleanups) - 1; idx >= 0; idx-- {
		cleanups[idx]()
	}
}

// Run runs services until one of them fails, or the process receives a termination
// signal. Services must return once their context is done.
func (ctx *Context) Run(services ...func(ctx context.Context) error) error {
	defer ctx.shutdown()
	defer ctx.Logger.Sync()
	group, groupCtx := errgroup.WithContext(context.Background())
	runCtx, cancel := context.WithCancel(groupCtx)
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer signal.Stop(sigc)
	group.Go(func() error {
		select {
		case sig := <-sigc:
			ctx.Logger.Info("received termination signal", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
		return nil
	})
	for _, service := range services {
		service := service
		group.Go(func() error {
			return service(runCtx)
		})
	}
	start := time.Now()
	err := group.Wait()
	ctx.Logger.Info("node stopped", zap.Duration("uptime", time.Since(start)))
	return err
}
