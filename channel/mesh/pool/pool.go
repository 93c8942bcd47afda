package pool

import (
	"context"

	"github.com/vx-labs/grid/network"
	grpc "google.golang.org/grpc"
)

// RPCJob runs one call on a peer connection.
type RPCJob func(*grpc.ClientConn) error

// Pool holds the connection to one peer.
type Pool struct {
	address string
	conn    *grpc.ClientConn
}

func (a *Pool) Call(job RPCJob) error {
	return job(a.conn)
}
func (a *Pool) Cancel() {
	a.conn.Close()
}

// NewPool dials addr lazily: the connection is established by the first call.
func NewPool(ctx context.Context, addr string, opts ...grpc.DialOption) (*Pool, error) {
	c := &Pool{
		address: addr,
	}
	conn, err := grpc.DialContext(ctx, addr, append(network.GRPCClientOptions(), opts...)...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}
