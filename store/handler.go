package store

import (
	"context"
	"sync"
	"time"

	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/rpc"
	"github.com/vx-labs/grid/store/pb"
	"github.com/vx-labs/grid/transport"
	"go.uber.org/zap"
)

// Handler executes the store commands received from remote members.
type Handler struct {
	store  *BoltStore
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger, store *BoltStore) *Handler {
	return &Handler{store: store, logger: logger}
}

var _ rpc.Handler = &Handler{}

func (h *Handler) Handle(ctx context.Context, sender cluster.Address, command interface{}) (interface{}, error) {
	switch cmd := command.(type) {
	case *pb.PutCommand:
		h.logger.Debug("applying remote put", zap.String("member", sender.String()), zap.String("resource_name", cmd.Resource))
		return nil, h.store.Put(cmd.Resource, cmd.Key, cmd.Value)
	case *pb.DeleteCommand:
		h.logger.Debug("applying remote delete", zap.String("member", sender.String()), zap.String("resource_name", cmd.Resource))
		err := h.store.Delete(cmd.Resource, cmd.Key)
		if err == ErrResourceNotFound {
			return nil, nil
		}
		return nil, err
	case *pb.GetCommand:
		value, err := h.store.Get(cmd.Resource, cmd.Key)
		if err == ErrKeyNotFound || err == ErrResourceNotFound {
			return nil, nil
		}
		return value, err
	}
	return nil, ErrUnknownCommand
}

// Invoker runs commands on remote members.
type Invoker interface {
	InvokeRemotely(ctx context.Context, inv transport.Invocation) ([]rpc.Response, error)
	Members() []cluster.Address
	Address() cluster.Address
}

// Replicated applies writes locally, then on every other member of the cluster.
type Replicated struct {
	store   *BoltStore
	invoker Invoker
	mode    rpc.ResponseMode
	timeout time.Duration
}

func NewReplicated(store *BoltStore, invoker Invoker, mode rpc.ResponseMode, timeout time.Duration) *Replicated {
	return &Replicated{store: store, invoker: invoker, mode: mode, timeout: timeout}
}

// peers returns the members of the cluster other than the local node.
func (r *Replicated) peers() []cluster.Address {
	self := r.invoker.Address()
	members := r.invoker.Members()
	out := make([]cluster.Address, 0, len(members))
	for _, member := range members {
		if member != self {
			out = append(out, member)
		}
	}
	return out
}

func (r *Replicated) Put(ctx context.Context, resource, key string, value []byte) error {
	if err := r.store.Put(resource, key, value); err != nil {
		return err
	}
	_, err := r.invoker.InvokeRemotely(ctx, transport.Invocation{
		Recipients:    r.peers(),
		Command:       &pb.PutCommand{Resource: resource, Key: key, Value: value},
		Mode:          r.mode,
		Timeout:       r.timeout,
		SupportReplay: true,
	})
	return err
}

func (r *Replicated) Delete(ctx context.Context, resource, key string) error {
	if err := r.store.Delete(resource, key); err != nil && err != ErrResourceNotFound {
		return err
	}
	_, err := r.invoker.InvokeRemotely(ctx, transport.Invocation{
		Recipients:    r.peers(),
		Command:       &pb.DeleteCommand{Resource: resource, Key: key},
		Mode:          r.mode,
		Timeout:       r.timeout,
		SupportReplay: true,
	})
	return err
}

// Get returns the local value of key, or asks the other members when it is missing
// locally. The first member holding a value answers; members answering without a
// value are not counted.
func (r *Replicated) Get(ctx context.Context, resource, key string) ([]byte, error) {
	value, err := r.store.Get(resource, key)
	if err == nil {
		return value, nil
	}
	if err != ErrKeyNotFound && err != ErrResourceNotFound {
		return nil, err
	}
	responses, err := r.invoker.InvokeRemotely(ctx, transport.Invocation{
		Recipients:  r.peers(),
		Command:     &pb.GetCommand{Resource: resource, Key: key},
		Mode:        rpc.WaitForFirstValid,
		Timeout:     r.timeout,
		UsePriority: true,
		Filter:      &firstValue{},
	})
	if err == transport.ErrNoValidResponses {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, response := range responses {
		if success, ok := response.(*rpc.SuccessfulResponse); ok {
			if value, ok := success.Value.([]byte); ok {
				return value, nil
			}
		}
	}
	return nil, ErrKeyNotFound
}

// firstValue stops an invocation as soon as one member returned a value.
type firstValue struct {
	mtx   sync.Mutex
	found bool
}

func (f *firstValue) IsAcceptable(response rpc.Response, sender cluster.Address) bool {
	success, ok := response.(*rpc.SuccessfulResponse)
	if !ok || success.Value == nil {
		return false
	}
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.found = true
	return true
}

func (f *firstValue) NeedMoreResponses() bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return !f.found
}
