package rpc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/distsync"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Handler executes commands received from remote members. A nil result with a nil
// error is sent back as a nil response.
type Handler interface {
	Handle(ctx context.Context, sender cluster.Address, command interface{}) (interface{}, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, sender cluster.Address, command interface{}) (interface{}, error)

func (f HandlerFunc) Handle(ctx context.Context, sender cluster.Address, command interface{}) (interface{}, error) {
	return f(ctx, sender, command)
}

type DispatcherConfig struct {
	Marshaller Marshaller
	Handler    Handler
	// Sync, when set, makes inbound commands hold a processing slot while they run and
	// honor in-progress flushes.
	Sync        *distsync.DistributedSync
	SyncTimeout time.Duration
}

// Dispatcher sends commands to remote members and serves the commands they send.
type Dispatcher struct {
	ch      channel.Channel
	config  DispatcherConfig
	logger  *zap.Logger
	stopped atomic.Bool
}

// NewDispatcher binds a dispatcher to ch and installs it as ch's request handler.
func NewDispatcher(logger *zap.Logger, ch channel.Channel, config DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		ch:     ch,
		config: config,
		logger: logger,
	}
	ch.SetRequestHandler(d)
	return d
}

// Stop stops serving inbound commands. Outbound invocations are refused afterwards.
func (d *Dispatcher) Stop() {
	if d.stopped.CAS(false, true) {
		d.ch.SetRequestHandler(nil)
	}
}

// InvokeRemoteCommands sends command to recipients and collects one RawResponse per
// recipient. A nil recipient list targets every member of the view; an empty list
// sends nothing. Asynchronous modes return an empty result.
func (d *Dispatcher) InvokeRemoteCommands(ctx context.Context, recipients []cluster.Address, command interface{},
	mode ResponseMode, timeout time.Duration, oob bool, filter ResponseFilter, replayable bool) ([]RawResponse, error) {
	if recipients != nil && len(recipients) == 0 {
		return nil, nil
	}
	if d.stopped.Load() {
		return nil, channel.ErrClosed
	}
	request := channel.Request{
		Destinations: cluster.ToNativeList(recipients),
		Mode:         mode.SendMode(),
		Timeout:      timeout,
		OOB:          oob,
	}
	if filter != nil {
		request.Filter = &rspFilter{filter: filter, decode: d.decodeResponse}
	}
	envelope := &Request{Command: command, Replayable: replayable}

	if mode == SynchronousWithAsyncMarshalling {
		go func() {
			payload, err := d.config.Marshaller.Marshal(envelope)
			if err != nil {
				d.logger.Error("failed to encode command", zap.Error(err))
				return
			}
			request.Payload = payload
			if _, err := d.ch.Send(context.Background(), request); err != nil {
				d.logger.Warn("failed to send command", zap.Error(err))
			}
		}()
		return nil, nil
	}
	payload, err := d.config.Marshaller.Marshal(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode command")
	}
	request.Payload = payload
	rsps, err := d.ch.Send(ctx, request)
	if err != nil {
		return nil, err
	}
	if mode.IsAsynchronous() {
		return nil, nil
	}
	out := make([]RawResponse, len(rsps))
	for idx, rsp := range rsps {
		out[idx] = RawResponse{Sender: cluster.FromNative(rsp.Sender)}
		switch {
		case rsp.Suspected:
			out[idx].State = Suspected
		case !rsp.Received:
			out[idx].State = NotReceived
		default:
			out[idx].State = Received
			out[idx].Value = d.decodeResponse(rsp.Value)
		}
	}
	return out, nil
}

func (d *Dispatcher) decodeResponse(b []byte) Response {
	if len(b) == 0 {
		return nil
	}
	v, err := d.config.Marshaller.Unmarshal(b)
	if err != nil {
		return &ExceptionResponse{Err: errors.Wrap(err, "failed to decode response")}
	}
	return asResponse(v)
}

func asResponse(v interface{}) Response {
	switch v := v.(type) {
	case nil:
		return nil
	case Response:
		return v
	default:
		return &SuccessfulResponse{Value: v}
	}
}

// HandleRequest serves one inbound command.
func (d *Dispatcher) HandleRequest(ctx context.Context, sender channel.Addr, payload []byte) []byte {
	return d.encodeResponse(d.handle(ctx, cluster.FromNative(sender), payload))
}

func (d *Dispatcher) handle(ctx context.Context, sender cluster.Address, payload []byte) Response {
	if d.stopped.Load() {
		return &ExceptionResponse{Err: &ReplicationError{Reason: "dispatcher is stopped"}}
	}
	v, err := d.config.Marshaller.Unmarshal(payload)
	if err != nil {
		return &ExceptionResponse{Err: errors.Wrap(err, "failed to decode command")}
	}
	request, ok := v.(*Request)
	if !ok {
		return &ExceptionResponse{Err: errors.Errorf("unexpected payload type %T", v)}
	}
	if dsync := d.config.Sync; dsync != nil {
		if dsync.IsFlushing() {
			if !request.Replayable {
				return &ExceptionResponse{Err: &ReplicationError{Reason: "flush in progress"}}
			}
			if _, err := dsync.BlockUntilReleased(ctx, d.config.SyncTimeout); err != nil {
				return &ExceptionResponse{Err: &ReplicationError{Reason: err.Error()}}
			}
		}
		if err := dsync.AcquireProcessingLock(ctx, false, d.config.SyncTimeout); err != nil {
			return &ExceptionResponse{Err: &ReplicationError{Reason: err.Error()}}
		}
		defer dsync.ReleaseProcessingLock(false)
	}
	if d.config.Handler == nil {
		return &ExceptionResponse{Err: &ReplicationError{Reason: "no command handler installed"}}
	}
	result, err := d.config.Handler.Handle(ctx, sender, request.Command)
	if err != nil {
		if !IsReplicationError(err) {
			d.logger.Debug("command failed", zap.String("sender", sender.String()), zap.Error(err))
		}
		return &ExceptionResponse{Err: err}
	}
	return asResponse(result)
}

func (d *Dispatcher) encodeResponse(response Response) []byte {
	payload, err := d.config.Marshaller.Marshal(response)
	if err == nil {
		return payload
	}
	d.logger.Error("failed to encode response", zap.Error(err))
	payload, err = d.config.Marshaller.Marshal(&ExceptionResponse{Err: &RemoteError{Message: err.Error()}})
	if err != nil {
		d.logger.Error("failed to encode error response", zap.Error(err))
		return nil
	}
	return payload
}

type rspFilter struct {
	filter ResponseFilter
	decode func([]byte) Response
}

func (f *rspFilter) IsAcceptable(value []byte, sender channel.Addr) bool {
	return f.filter.IsAcceptable(f.decode(value), cluster.FromNative(sender))
}

func (f *rspFilter) NeedMoreResponses() bool {
	return f.filter.NeedMoreResponses()
}
