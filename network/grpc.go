package network

import (
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/balancer/roundrobin"
	"google.golang.org/grpc/keepalive"
)

func init() {
	grpc_prometheus.EnableHandlingTimeHistogram()
}

// Members ping idle connections so that a peer that vanished without leaving the
// gossip layer is noticed by pending calls.
var serverEnforcement = keepalive.EnforcementPolicy{
	MinTime:             5 * time.Second,
	PermitWithoutStream: true,
}

var serverKeepalive = keepalive.ServerParameters{
	Time:    10 * time.Second,
	Timeout: 3 * time.Second,
}

var clientKeepalive = keepalive.ClientParameters{
	Time:                10 * time.Second,
	Timeout:             3 * time.Second,
	PermitWithoutStream: true,
}

// GRPCServerOptions returns the options of the member-to-member RPC server.
func GRPCServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.KeepaliveEnforcementPolicy(serverEnforcement),
		grpc.KeepaliveParams(serverKeepalive),
	}
}

// GRPCClientOptions returns the dial options used to reach other members. Calls wait
// for the connection to be ready: their deadline bounds the wait.
func GRPCClientOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithInsecure(),
		grpc.WithKeepaliveParams(clientKeepalive),
		grpc.WithStreamInterceptor(grpc_prometheus.StreamClientInterceptor),
		grpc.WithUnaryInterceptor(grpc_prometheus.UnaryClientInterceptor),
		grpc.WithBalancerName(roundrobin.Name),
		grpc.WithDefaultCallOptions(
			grpc.WaitForReady(true),
		),
	}
}
