package transport

import (
	"context"
	"time"

	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/rpc"
	"go.uber.org/zap"
)

// Invocation describes a remote command invocation.
type Invocation struct {
	// Recipients of the command. A nil list targets the whole view; an empty list is a
	// no-op.
	Recipients []cluster.Address
	Command    interface{}
	Mode       rpc.ResponseMode
	Timeout    time.Duration
	// UsePriority sends the command out of band: receivers do not order it with the
	// other commands of this node.
	UsePriority bool
	// Filter may stop waiting before every recipient has answered. Recipients that did
	// not answer are then ignored instead of failing the invocation.
	Filter        rpc.ResponseFilter
	SupportReplay bool
}

// InvokeRemotely runs a command on remote members and returns their usable responses in
// receipt order. Asynchronous modes return an empty list immediately.
func (t *Transport) InvokeRemotely(ctx context.Context, inv Invocation) ([]rpc.Response, error) {
	if inv.Recipients != nil && len(inv.Recipients) == 0 {
		t.logger.Debug("recipient list is empty: no need to send command")
		return []rpc.Response{}, nil
	}
	dispatcher := t.currentDispatcher()
	if dispatcher == nil {
		return nil, ErrNotStarted
	}
	timeout := t.config.DistributedSyncTimeout
	if err := t.dsync.AcquireProcessingLock(ctx, false, timeout); err != nil {
		return nil, err
	}
	defer t.dsync.ReleaseProcessingLock(false)
	if _, err := t.dsync.BlockUntilReleased(ctx, timeout); err != nil {
		return nil, err
	}

	raw, err := dispatcher.InvokeRemoteCommands(ctx, inv.Recipients, inv.Command, inv.Mode,
		inv.Timeout, inv.UsePriority, inv.Filter, inv.SupportReplay)
	if err != nil {
		t.stats.record(t.metrics, inv.Mode, err)
		return nil, err
	}
	if inv.Mode.IsAsynchronous() {
		t.stats.record(t.metrics, inv.Mode, nil)
		return []rpc.Response{}, nil
	}
	responses, err := aggregate(raw, inv.Filter != nil)
	t.stats.record(t.metrics, inv.Mode, err)
	if err != nil {
		t.logger.Debug("remote invocation failed", zap.String("mode", inv.Mode.String()), zap.Error(err))
		return nil, err
	}
	return responses, nil
}

// aggregate validates the per-member outcomes of an invocation, in substrate order.
// Replication errors are swallowed; any other remote failure is returned as is.
func aggregate(raw []rpc.RawResponse, filtered bool) ([]rpc.Response, error) {
	out := make([]rpc.Response, 0, len(raw))
	valid := false
	for _, rsp := range raw {
		switch rsp.State {
		case rpc.Suspected:
			return nil, &SuspectError{Member: rsp.Sender}
		case rpc.NotReceived:
			if !filtered {
				return nil, &TimeoutError{Member: rsp.Sender}
			}
			continue
		}
		if exception, ok := rsp.Value.(*rpc.ExceptionResponse); ok {
			if exception.Err == nil {
				return nil, &rpc.RemoteError{Message: "remote failure from " + rsp.Sender.String()}
			}
			if !rpc.IsReplicationError(exception.Err) {
				return nil, exception.Err
			}
			continue
		}
		valid = true
		if rsp.Value != nil {
			out = append(out, rsp.Value)
		}
	}
	if !valid {
		return nil, ErrNoValidResponses
	}
	return out, nil
}
