package distsync

import (
	"context"
	"sync"
)

// latch is a gate that can be opened and closed again. Waiters block while it is closed.
type latch struct {
	mtx  sync.Mutex
	open chan struct{}
}

func newLatch(open bool) *latch {
	l := &latch{open: make(chan struct{})}
	if open {
		close(l.open)
	}
	return l
}

func (l *latch) isOpen() bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	select {
	case <-l.open:
		return true
	default:
		return false
	}
}

func (l *latch) Open() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	select {
	case <-l.open:
	default:
		close(l.open)
	}
}

func (l *latch) Close() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	select {
	case <-l.open:
		l.open = make(chan struct{})
	default:
	}
}

// Await blocks until the latch is open or ctx is done.
func (l *latch) Await(ctx context.Context) error {
	l.mtx.Lock()
	open := l.open
	l.mtx.Unlock()
	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
