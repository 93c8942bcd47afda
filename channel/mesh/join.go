package mesh

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/vx-labs/grid/channel"
	"go.uber.org/zap"
)

var errNoPeers = errors.New("no peer to join")

// newPeers returns the peers that are not already part of the gossip membership.
func (c *Channel) newPeers(ctx context.Context) ([]string, error) {
	if c.config.Peers == nil {
		return nil, nil
	}
	peers, err := c.config.Peers.Peers(ctx)
	if err != nil {
		return nil, err
	}
	c.mtx.RLock()
	mlist := c.mlist
	c.mtx.RUnlock()
	if mlist == nil {
		return nil, nil
	}
	known := map[string]struct{}{}
	for _, member := range mlist.Members() {
		known[member.Address()] = struct{}{}
	}
	out := make([]string, 0, len(peers))
	for _, peer := range peers {
		if _, ok := known[peer]; !ok {
			out = append(out, peer)
		}
	}
	return out, nil
}

func (c *Channel) joinOnce(ctx context.Context) error {
	peers, err := c.newPeers(ctx)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return errNoPeers
	}
	c.mtx.RLock()
	mlist := c.mlist
	c.mtx.RUnlock()
	if mlist == nil {
		return backoff.Permanent(errors.New("channel is not connected"))
	}
	c.logger.Debug("joining cluster", zap.Strings("nodes", peers))
	count, err := mlist.Join(peers)
	if count > 0 {
		if err != nil {
			c.logger.Warn("failed to join some member of cluster", zap.Error(err))
		}
		return nil
	}
	return err
}

// join retries joining the configured peers until one answers, or the join timeout
// expires. Having no peer to join is not an error.
func (c *Channel) join(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.config.JoinTimeout
	err := backoff.Retry(func() error {
		err := c.joinOnce(ctx)
		if err == errNoPeers {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if err == errNoPeers {
		return nil
	}
	return err
}

// reconnect joins the peers again while the node is alone in its membership and
// OptionAutoReconnect is set.
func (c *Channel) reconnect(ctx context.Context) {
	ticker := time.NewTicker(c.config.ReconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Option(channel.OptionAutoReconnect) || len(c.View().Members) > 1 {
				continue
			}
			if err := c.joinOnce(ctx); err != nil && err != errNoPeers {
				c.logger.Debug("failed to reconnect to cluster", zap.Error(err))
			}
		}
	}
}
