package cluster

import (
	"context"
	"sync"
)

// MembershipView holds the current ordered member list. The member at index 0 is
// the coordinator.
type MembershipView struct {
	mtx     sync.Mutex
	members []Address
	changed chan struct{}
}

func NewMembershipView() *MembershipView {
	return &MembershipView{
		members: []Address{},
		changed: make(chan struct{}),
	}
}

// Members returns the current snapshot. Callers must not modify it.
func (v *MembershipView) Members() []Address {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return v.members
}

// Coordinator returns the first member of the view, if any.
func (v *MembershipView) Coordinator() (Address, bool) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	if len(v.members) == 0 {
		return Address{}, false
	}
	return v.members[0], true
}

// Install replaces the member list with a copy of members, when members is not nil,
// then runs onInstalled with the current snapshot while still holding the view lock,
// and finally wakes up every goroutine blocked in WaitForCoordinator.
func (v *MembershipView) Install(members []Address, onInstalled func(members []Address, changed bool)) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	changed := false
	if members != nil {
		snapshot := make([]Address, len(members))
		copy(snapshot, members)
		v.members = snapshot
		changed = true
	}
	if onInstalled != nil {
		onInstalled(v.members, changed)
	}
	close(v.changed)
	v.changed = make(chan struct{})
}

// Reset empties the view and wakes up waiters.
func (v *MembershipView) Reset() {
	v.Install([]Address{}, nil)
}

// WaitForCoordinator blocks until the view holds at least one member, and returns the
// first one.
func (v *MembershipView) WaitForCoordinator(ctx context.Context) (Address, error) {
	for {
		v.mtx.Lock()
		if len(v.members) > 0 {
			coordinator := v.members[0]
			v.mtx.Unlock()
			return coordinator, nil
		}
		changed := v.changed
		v.mtx.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			return Address{}, ctx.Err()
		}
	}
}
