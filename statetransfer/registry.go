package statetransfer

import (
	"sync"

	"github.com/pkg/errors"
)

// Registry tracks the transfers in progress, at most one per resource.
type Registry struct {
	monitors sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register creates and registers a monitor for resource. It fails with
// ErrTransferInProgress if a monitor is already registered.
func (r *Registry) Register(resource string) (*Monitor, error) {
	mon := NewMonitor()
	if _, loaded := r.monitors.LoadOrStore(resource, mon); loaded {
		return nil, errors.Wrapf(ErrTransferInProgress, "resource %q", resource)
	}
	return mon, nil
}

func (r *Registry) Lookup(resource string) (*Monitor, bool) {
	v, ok := r.monitors.Load(resource)
	if !ok {
		return nil, false
	}
	return v.(*Monitor), true
}

func (r *Registry) Unregister(resource string) {
	r.monitors.Delete(resource)
}

// InProgress returns the names of the resources being transferred.
func (r *Registry) InProgress() []string {
	out := []string{}
	r.monitors.Range(func(key, _ interface{}) bool {
		out = append(out, key.(string))
		return true
	})
	return out
}
