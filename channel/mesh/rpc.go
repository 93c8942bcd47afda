package mesh

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/channel/mesh/pb"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (c *Channel) requestHandler() channel.RequestHandler {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.handler
}

func (c *Channel) stateReceiver() channel.Receiver {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.receiver
}

// Invoke runs an inbound request. Requests from the same sender run in arrival order,
// unless flagged out of band.
func (c *Channel) Invoke(ctx context.Context, input *pb.InvokeRequest) (*pb.InvokeResponse, error) {
	if !c.open.Load() {
		return nil, status.Error(codes.Unavailable, channel.ErrClosed.Error())
	}
	return c.serve(ctx, channel.Addr(input.Sender), input.Payload, input.OOB)
}

func (c *Channel) serve(ctx context.Context, sender channel.Addr, payload []byte, oob bool) (*pb.InvokeResponse, error) {
	handler := c.requestHandler()
	if handler == nil {
		return &pb.InvokeResponse{}, nil
	}
	if oob {
		return &pb.InvokeResponse{Payload: handler.HandleRequest(ctx, sender, payload)}, nil
	}
	done := make(chan []byte, 1)
	c.queueFor(sender).push(func() {
		done <- handler.HandleRequest(ctx, sender, payload)
	})
	select {
	case out := <-done:
		return &pb.InvokeResponse{Payload: out}, nil
	case <-ctx.Done():
		return nil, contextError(ctx.Err())
	}
}

func contextError(err error) error {
	if err == context.DeadlineExceeded {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Canceled, err.Error())
}

// FetchState streams the state identified by input.StateID to the requester.
func (c *Channel) FetchState(input *pb.FetchStateRequest, stream pb.Mesh_FetchStateServer) error {
	if !c.config.StateTransfer {
		return status.Error(codes.Unimplemented, "state transfer is disabled")
	}
	receiver := c.stateReceiver()
	if receiver == nil || !c.open.Load() {
		return status.Error(codes.Unavailable, "no state provider")
	}
	w := newChunkWriter(c.config.ChunkSize, stream.Send)
	logger := c.logger.With(zap.String("member", input.Sender), zap.String("resource_name", input.StateID))
	go func() {
		if input.StateID == "" {
			if err := receiver.WriteState(w); err != nil {
				w.CloseWithError(err)
				return
			}
			w.Close()
			return
		}
		receiver.WriteResourceState(input.StateID, w)
	}()
	select {
	case <-w.done:
		if err := w.Err(); err != nil {
			logger.Warn("failed to stream state", zap.Error(err))
			return err
		}
		return nil
	case <-stream.Context().Done():
		w.abort(stream.Context().Err())
		return contextError(stream.Context().Err())
	}
}

// call sends a request to dest. A call interrupted by the departure of dest fails with
// channel.ErrUnreachable.
func (c *Channel) call(ctx context.Context, dest channel.Addr, req channel.Request) ([]byte, error) {
	if dest == c.addr {
		out, err := c.serve(ctx, c.addr, req.Payload, req.OOB)
		if err != nil {
			return nil, err
		}
		return out.Payload, nil
	}
	n := c.lookup(dest)
	if n == nil {
		return nil, channel.ErrUnreachable
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-n.gone:
			cancel()
		case <-ctx.Done():
		}
	}()
	var out []byte
	err := c.caller.Call(n.meta.RPCAddress, func(conn *grpc.ClientConn) error {
		resp, err := pb.NewMeshClient(conn).Invoke(ctx, &pb.InvokeRequest{
			Sender:  string(c.addr),
			Payload: req.Payload,
			OOB:     req.OOB,
		})
		if err != nil {
			return err
		}
		out = resp.Payload
		return nil
	})
	if err != nil {
		select {
		case <-n.gone:
			return nil, channel.ErrUnreachable
		default:
		}
		return nil, err
	}
	return out, nil
}

func (c *Channel) Send(ctx context.Context, req channel.Request) ([]channel.Rsp, error) {
	if !c.IsOpen() {
		return nil, channel.ErrClosed
	}
	dests := req.Destinations
	if dests == nil {
		local := c.Option(channel.OptionLocal)
		for _, member := range c.View().Members {
			if member != c.addr || local {
				dests = append(dests, member)
			}
		}
	}
	return channel.Gather(ctx, req, dests, c.isMember, func(ctx context.Context, dest channel.Addr) ([]byte, error) {
		return c.call(ctx, dest, req)
	}), nil
}

// RequestState opens a state stream from source. Chunks are piped into the receiver's
// ApplyResourceState callback, or ApplyState for the whole node state, in the
// background. The stream is aborted when ctx is done or the timeout expires.
func (c *Channel) RequestState(ctx context.Context, source channel.Addr, stateID string, timeout time.Duration) error {
	if !c.IsOpen() {
		return channel.ErrClosed
	}
	if !c.isMember(source) {
		return errors.Wrapf(channel.ErrNotMember, "state source %s", source)
	}
	n := c.lookup(source)
	receiver := c.stateReceiver()
	if n == nil || receiver == nil {
		return channel.ErrUnreachable
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	var stream pb.Mesh_FetchStateClient
	err := c.caller.Call(n.meta.RPCAddress, func(conn *grpc.ClientConn) error {
		var err error
		stream, err = pb.NewMeshClient(conn).FetchState(ctx, &pb.FetchStateRequest{
			Sender:  string(c.addr),
			StateID: stateID,
		})
		return err
	})
	if err != nil {
		cancel()
		return errors.Wrapf(err, "failed to open state stream from %s", source)
	}
	r, w := io.Pipe()
	go func() {
		w.CloseWithError(pumpChunks(stream, w))
	}()
	go func() {
		defer cancel()
		if stateID == "" {
			defer r.Close()
			if err := receiver.ApplyState(r); err != nil {
				c.logger.Warn("failed to apply node state", zap.Error(err))
			}
			return
		}
		receiver.ApplyResourceState(stateID, r)
	}()
	return nil
}

// pumpChunks copies the chunks of stream into w. It returns nil once the stream
// completed, the producer failure when the stream ended with one.
func pumpChunks(stream pb.Mesh_FetchStateClient, w io.Writer) error {
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if chunk.Error != "" {
			return errors.Errorf("state producer failed: %s", chunk.Error)
		}
		if _, err := w.Write(chunk.Data); err != nil {
			return err
		}
	}
}
