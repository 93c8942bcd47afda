package transport

import (
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/cluster"
	"go.uber.org/zap"
)

// ViewAccepted installs a new view. The coordinator flag is updated before the
// membership listener is notified, and waiters in Coordinator are woken up last.
func (t *Transport) ViewAccepted(view channel.View) {
	self := t.Address()
	var members []cluster.Address
	if view.Members != nil {
		members = cluster.FromNativeList(view.Members)
	}
	t.view.Install(members, func(current []cluster.Address, changed bool) {
		isCoordinator := len(current) > 0 && current[0] == self
		t.coordinator.Store(isCoordinator)
		if isCoordinator {
			t.metrics.coordinator.Set(1)
		} else {
			t.metrics.coordinator.Set(0)
		}
		t.metrics.members.Set(float64(len(current)))
		t.logger.Debug("view accepted",
			zap.Uint64("view_id", view.ID),
			zap.Int("member_count", len(current)),
			zap.Bool("is_coordinator", isCoordinator))
		if changed && t.config.Listener != nil {
			snapshot := make([]cluster.Address, len(current))
			copy(snapshot, current)
			t.config.Listener.MembershipChanged(snapshot, self)
		}
	})
}

// Suspect is ignored: membership only changes through views.
func (t *Transport) Suspect(member channel.Addr) {
	t.logger.Debug("member suspected", zap.String("member", string(member)))
}

func (t *Transport) Block() {
	t.logger.Debug("channel blocked")
}

func (t *Transport) Unblock() {
	t.logger.Debug("channel unblocked")
}

// Receive ignores plain messages: commands are served by the dispatcher.
func (t *Transport) Receive(sender channel.Addr, payload []byte) {
	t.logger.Debug("ignoring message", zap.String("sender", string(sender)), zap.Int("payload_size", len(payload)))
}
