// Package discovery finds the gossip addresses of the peers a node joins on startup.
package discovery

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vx-labs/grid/config"
	"go.uber.org/zap"
)

const (
	KindStatic = "static"
	KindConsul = "consul"
)

// Discoverer returns the gossip addresses of known peers.
type Discoverer interface {
	Peers(ctx context.Context) ([]string, error)
}

// Static is a fixed list of peers.
type Static []string

func (s Static) Peers(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// FromStack returns the discoverer selected by the substrate settings. self is the
// advertised gossip address of the local node; it is never returned as a peer.
func FromStack(logger *zap.Logger, stack config.Stack, self string) (Discoverer, error) {
	switch stack.Discovery {
	case "", KindStatic:
		peers := make(Static, 0, len(stack.JoinPeers))
		for _, peer := range stack.JoinPeers {
			if peer != self {
				peers = append(peers, peer)
			}
		}
		return peers, nil
	case KindConsul:
		return NewConsul(logger, nil, stack.ConsulService, self)
	}
	return nil, errors.Errorf("unknown discovery kind %q", stack.Discovery)
}
