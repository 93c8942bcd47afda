package statetransfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTransferInProgress is returned when a transfer is already registered for a resource.
	ErrTransferInProgress = errors.New("state transfer already in progress")
)

// Error wraps a failure that happened while producing or applying state.
type Error struct {
	Resource string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state transfer failed for resource %q: %v", e.Resource, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// Monitor signals the completion of a single state transfer.
type Monitor struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewMonitor() *Monitor {
	return &Monitor{done: make(chan struct{})}
}

func (m *Monitor) complete(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.done)
	})
}

func (m *Monitor) Succeeded() {
	m.complete(nil)
}

func (m *Monitor) Failed(err error) {
	m.complete(err)
}

// Done is closed once the transfer has completed.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the transfer completes, and returns its failure if any.
func (m *Monitor) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
