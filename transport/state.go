package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/vx-labs/grid/channel"
	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/statetransfer"
	"go.uber.org/zap"
)

// RetrieveState pulls the state of resource from source and applies it locally. Transfer
// failures are reported as false; only a transfer already in progress for resource is
// returned as an error. A non-positive timeout waits until ctx is done. The transfer
// is unregistered before RetrieveState returns.
func (t *Transport) RetrieveState(ctx context.Context, resource string, source cluster.Address, timeout time.Duration) (bool, error) {
	ch := t.channel()
	if ch == nil {
		return false, ErrNotStarted
	}
	monitor, err := t.transfers.Register(resource)
	if err != nil {
		t.metrics.stateTransfers.WithLabelValues("conflict").Inc()
		return false, err
	}
	defer t.transfers.Unregister(resource)

	logger := t.logger.With(zap.String("resource_name", resource), zap.String("member", source.String()))
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	if err := ch.RequestState(ctx, cluster.ToNative(source), resource, timeout); err != nil {
		logger.Warn("state transfer request failed", zap.Error(err))
		t.metrics.stateTransfers.WithLabelValues("failed").Inc()
		return false, nil
	}
	if err := monitor.Wait(ctx); err != nil {
		logger.Warn("state transfer failed", zap.Error(err))
		t.metrics.stateTransfers.WithLabelValues("failed").Inc()
		return false, nil
	}
	logger.Debug("state transfer succeeded")
	t.metrics.stateTransfers.WithLabelValues("succeeded").Inc()
	return true, nil
}

// WriteState is not supported: state is only transferred per resource.
func (t *Transport) WriteState(w io.Writer) error {
	t.logger.Error("whole node state generation is not supported")
	return ErrUnsupportedOperation
}

// ApplyState is not supported: state is only transferred per resource.
func (t *Transport) ApplyState(r io.Reader) error {
	t.logger.Error("whole node state application is not supported")
	return ErrUnsupportedOperation
}

// WriteResourceState streams the state of resource into w, flushing what was generated
// and closing w on every path. A generation failure is reported to the consumer when w
// supports it.
func (t *Transport) WriteResourceState(resource string, w io.WriteCloser) {
	logger := t.logger.With(zap.String("resource_name", resource))
	buf := bufio.NewWriter(w)
	err := t.generateState(resource, buf)
	if flushErr := buf.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		logger.Error("failed to generate state", zap.Error(err))
		if closer, ok := w.(channel.StateCloser); ok {
			if err := closer.CloseWithError(&statetransfer.Error{Resource: resource, Err: err}); err != nil {
				logger.Error("failed to close state stream", zap.Error(err))
			}
			return
		}
	}
	if err := w.Close(); err != nil {
		logger.Error("failed to close state stream", zap.Error(err))
	}
}

func (t *Transport) generateState(resource string, w io.Writer) error {
	if resource == "" {
		return t.WriteState(w)
	}
	if t.config.StateProvider == nil {
		return errors.New("no state provider configured")
	}
	return t.config.StateProvider.GenerateState(resource, w)
}

// ApplyResourceState applies the state of resource read from r, signals the transfer
// monitor registered for resource, and always closes r.
func (t *Transport) ApplyResourceState(resource string, r io.ReadCloser) {
	logger := t.logger.With(zap.String("resource_name", resource))
	defer func() {
		if err := r.Close(); err != nil {
			logger.Error("failed to close state stream", zap.Error(err))
		}
	}()
	if resource == "" {
		t.ApplyState(r)
		return
	}
	monitor, ok := t.transfers.Lookup(resource)
	if !ok {
		logger.Error("received state for a resource with no transfer in progress")
		return
	}
	if t.config.StateProvider == nil {
		monitor.Failed(&statetransfer.Error{Resource: resource, Err: errors.New("no state provider configured")})
		return
	}
	if err := t.config.StateProvider.ApplyState(resource, r); err != nil {
		logger.Error("failed to apply state", zap.Error(err))
		monitor.Failed(&statetransfer.Error{Resource: resource, Err: err})
		return
	}
	monitor.Succeeded()
}
