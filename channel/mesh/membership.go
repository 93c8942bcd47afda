package mesh

import (
	proto "github.com/golang/protobuf/proto"
	"github.com/hashicorp/memberlist"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/channel/mesh/pb"
	"go.uber.org/zap"
)

// memberlist runs the event callbacks while holding its node lock: they must not call
// back into the membership, and only record the change.

func (c *Channel) NotifyJoin(n *memberlist.Node) {
	meta, err := decodeMeta(n.Meta)
	if err != nil {
		c.logger.Warn("ignoring node with invalid metadata", zap.String("member", n.Name), zap.Error(err))
		return
	}
	c.nodesMtx.Lock()
	if old, ok := c.nodes[n.Name]; ok {
		close(old.gone)
	}
	c.nodes[n.Name] = &node{name: n.Name, meta: meta, gone: make(chan struct{})}
	c.nodesMtx.Unlock()
	c.logger.Debug("node joined", zap.String("member", n.Name), zap.String("cluster_name", meta.ClusterName))
	c.notifyChange()
}

func (c *Channel) NotifyLeave(n *memberlist.Node) {
	c.nodesMtx.Lock()
	old, ok := c.nodes[n.Name]
	if ok {
		close(old.gone)
		delete(c.nodes, n.Name)
	}
	delete(c.queues, channel.Addr(n.Name))
	c.nodesMtx.Unlock()
	if !ok {
		return
	}
	c.caller.Cancel(old.meta.RPCAddress)
	c.logger.Debug("node left", zap.String("member", n.Name))
	c.notifyChange()
}

func (c *Channel) NotifyUpdate(n *memberlist.Node) {
	meta, err := decodeMeta(n.Meta)
	if err != nil {
		c.logger.Warn("ignoring invalid metadata update", zap.String("member", n.Name), zap.Error(err))
		return
	}
	c.nodesMtx.Lock()
	old, ok := c.nodes[n.Name]
	if !ok {
		c.nodesMtx.Unlock()
		return
	}
	previous := old.meta
	old.meta = meta
	c.nodesMtx.Unlock()
	if previous.RPCAddress != meta.RPCAddress {
		c.caller.Cancel(previous.RPCAddress)
	}
	c.notifyChange()
}

func (c *Channel) NodeMeta(limit int) []byte {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if len(c.meta) > limit {
		c.logger.Error("node metadata exceeds gossip limit", zap.Int("size", len(c.meta)), zap.Int("limit", limit))
		return nil
	}
	return c.meta
}

// NotifyMsg delivers a gossiped message to the receiver.
func (c *Channel) NotifyMsg(b []byte) {
	if !c.open.Load() {
		return
	}
	var msg pb.Message
	if err := proto.Unmarshal(b, &msg); err != nil {
		c.logger.Error("failed to decode gossiped message", zap.Error(err))
		return
	}
	c.mtx.RLock()
	receiver := c.receiver
	c.mtx.RUnlock()
	if receiver == nil {
		return
	}
	receiver.Receive(channel.Addr(msg.Sender), msg.Payload)
}

func (c *Channel) GetBroadcasts(overhead, limit int) [][]byte {
	return c.bcastQueue.GetBroadcasts(overhead, limit)
}

// LocalState and MergeRemoteState are unused: state travels over FetchState.
func (c *Channel) LocalState(join bool) []byte            { return nil }
func (c *Channel) MergeRemoteState(buf []byte, join bool) {}

type broadcast []byte

func (b broadcast) Invalidates(memberlist.Broadcast) bool { return false }
func (b broadcast) Message() []byte                       { return b }
func (b broadcast) Finished()                             {}

// Broadcast gossips payload to every node of the membership. Delivery is best effort
// and unordered; the local receiver is only notified when OptionLocal is set.
func (c *Channel) Broadcast(payload []byte) error {
	if !c.open.Load() {
		return channel.ErrClosed
	}
	b, err := proto.Marshal(&pb.Message{Sender: string(c.addr), Payload: payload})
	if err != nil {
		return err
	}
	c.bcastQueue.QueueBroadcast(broadcast(b))
	if c.Option(channel.OptionLocal) {
		c.NotifyMsg(b)
	}
	return nil
}
