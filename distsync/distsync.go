// Package distsync coordinates ordinary remote invocations with cluster-wide flushes.
//
// Every invocation holds a non-exclusive processing slot while it runs. A flush takes
// the processing lock exclusively: it waits for every slot to be released, and no slot
// is granted until the flush releases it. Slot requests issued while a flush is waiting
// queue behind it.
package distsync

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTimeout is returned when a slot, a lock or a gate could not be obtained in time.
	ErrTimeout = errors.New("timed out waiting for distributed sync")
)

const maxProcessingSlots int64 = 1 << 30

// SyncResponse tells whether a wait observed a state that already existed when it
// started, or a state reached while it was waiting.
type SyncResponse int

const (
	StatePreexisted SyncResponse = iota
	StateAchieved
)

type DistributedSync struct {
	processing     *semaphore.Weighted
	flushBlockGate *latch
	flushWaitGate  *latch
	acquiredCount  atomic.Int64
	releasedCount  atomic.Int64
}

func New() *DistributedSync {
	return &DistributedSync{
		processing:     semaphore.NewWeighted(maxProcessingSlots),
		flushBlockGate: newLatch(true),
		flushWaitGate:  newLatch(false),
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func timeoutError(what string, timeout time.Duration) error {
	return pkgerrors.Wrapf(ErrTimeout, "%s (timeout = %s)", what, timeout)
}

// AcquireProcessingLock obtains a processing slot, or the whole processing lock when
// exclusive is set.
func (d *DistributedSync) AcquireProcessingLock(ctx context.Context, exclusive bool, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	weight := int64(1)
	if exclusive {
		weight = maxProcessingSlots
	}
	if err := d.processing.Acquire(ctx, weight); err != nil {
		return timeoutError("could not acquire processing lock", timeout)
	}
	return nil
}

func (d *DistributedSync) ReleaseProcessingLock(exclusive bool) {
	if exclusive {
		d.processing.Release(maxProcessingSlots)
		return
	}
	d.processing.Release(1)
}

// AcquireSync closes the flush gate: BlockUntilReleased callers wait until ReleaseSync.
func (d *DistributedSync) AcquireSync() {
	d.flushBlockGate.Close()
	d.acquiredCount.Inc()
	d.flushWaitGate.Open()
}

func (d *DistributedSync) ReleaseSync() {
	d.flushWaitGate.Close()
	d.releasedCount.Inc()
	d.flushBlockGate.Open()
}

// IsFlushing reports whether a flush currently holds the gate.
func (d *DistributedSync) IsFlushing() bool {
	return !d.flushBlockGate.isOpen()
}

// BlockUntilAcquired waits until a flush holds the gate.
func (d *DistributedSync) BlockUntilAcquired(ctx context.Context, timeout time.Duration) (SyncResponse, error) {
	initial := d.acquiredCount.Load()
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := d.flushWaitGate.Await(ctx); err != nil {
		return StatePreexisted, timeoutError("timed out waiting for a cluster-wide sync to be acquired", timeout)
	}
	if initial == d.acquiredCount.Load() {
		return StatePreexisted, nil
	}
	return StateAchieved, nil
}

// BlockUntilReleased waits until no flush holds the gate.
func (d *DistributedSync) BlockUntilReleased(ctx context.Context, timeout time.Duration) (SyncResponse, error) {
	initial := d.releasedCount.Load()
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := d.flushBlockGate.Await(ctx); err != nil {
		return StatePreexisted, timeoutError("timed out waiting for a cluster-wide sync to be released", timeout)
	}
	if initial == d.releasedCount.Load() {
		return StatePreexisted, nil
	}
	return StateAchieved, nil
}

// Flush runs fn while holding the processing lock exclusively and the flush gate closed.
func (d *DistributedSync) Flush(ctx context.Context, timeout time.Duration, fn func() error) error {
	if err := d.AcquireProcessingLock(ctx, true, timeout); err != nil {
		return err
	}
	defer d.ReleaseProcessingLock(true)
	d.AcquireSync()
	defer d.ReleaseSync()
	return fn()
}
