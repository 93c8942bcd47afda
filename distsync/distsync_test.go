package distsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingLock(t *testing.T) {
	ctx := context.Background()
	t.Run("slots are not exclusive", func(t *testing.T) {
		dsync := New()
		for i := 0; i < 10; i++ {
			require.NoError(t, dsync.AcquireProcessingLock(ctx, false, 10*time.Millisecond))
		}
		for i := 0; i < 10; i++ {
			dsync.ReleaseProcessingLock(false)
		}
	})
	t.Run("exclusive lock waits for slots to drain", func(t *testing.T) {
		dsync := New()
		require.NoError(t, dsync.AcquireProcessingLock(ctx, false, time.Second))
		err := dsync.AcquireProcessingLock(ctx, true, 20*time.Millisecond)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTimeout))

		acquired := make(chan error)
		go func() {
			acquired <- dsync.AcquireProcessingLock(ctx, true, time.Second)
		}()
		time.Sleep(10 * time.Millisecond)
		dsync.ReleaseProcessingLock(false)
		require.NoError(t, <-acquired)
		dsync.ReleaseProcessingLock(true)
	})
	t.Run("slots are refused while the exclusive lock is held", func(t *testing.T) {
		dsync := New()
		require.NoError(t, dsync.AcquireProcessingLock(ctx, true, time.Second))
		err := dsync.AcquireProcessingLock(ctx, false, 20*time.Millisecond)
		assert.True(t, errors.Is(err, ErrTimeout))
		dsync.ReleaseProcessingLock(true)
		assert.NoError(t, dsync.AcquireProcessingLock(ctx, false, 20*time.Millisecond))
	})
	t.Run("slots queue behind a pending exclusive request", func(t *testing.T) {
		dsync := New()
		require.NoError(t, dsync.AcquireProcessingLock(ctx, false, time.Second))
		pending := make(chan error)
		go func() {
			pending <- dsync.AcquireProcessingLock(ctx, true, time.Second)
		}()
		time.Sleep(10 * time.Millisecond)
		err := dsync.AcquireProcessingLock(ctx, false, 20*time.Millisecond)
		assert.True(t, errors.Is(err, ErrTimeout))
		dsync.ReleaseProcessingLock(false)
		require.NoError(t, <-pending)
		dsync.ReleaseProcessingLock(true)
	})
}

func TestSyncGates(t *testing.T) {
	ctx := context.Background()
	t.Run("released by default", func(t *testing.T) {
		dsync := New()
		state, err := dsync.BlockUntilReleased(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, StatePreexisted, state)
		assert.False(t, dsync.IsFlushing())
	})
	t.Run("blocks while acquired", func(t *testing.T) {
		dsync := New()
		dsync.AcquireSync()
		assert.True(t, dsync.IsFlushing())
		_, err := dsync.BlockUntilReleased(ctx, 20*time.Millisecond)
		assert.True(t, errors.Is(err, ErrTimeout))

		result := make(chan SyncResponse)
		go func() {
			state, err := dsync.BlockUntilReleased(ctx, time.Second)
			if err == nil {
				result <- state
			}
		}()
		time.Sleep(10 * time.Millisecond)
		dsync.ReleaseSync()
		assert.Equal(t, StateAchieved, <-result)
	})
	t.Run("block until acquired", func(t *testing.T) {
		dsync := New()
		_, err := dsync.BlockUntilAcquired(ctx, 10*time.Millisecond)
		assert.True(t, errors.Is(err, ErrTimeout))
		dsync.AcquireSync()
		state, err := dsync.BlockUntilAcquired(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, StatePreexisted, state)
	})
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	t.Run("flush drains slots", func(t *testing.T) {
		dsync := New()
		require.NoError(t, dsync.AcquireProcessingLock(ctx, false, time.Second))
		var mtx sync.Mutex
		order := []string{}
		done := make(chan error)
		go func() {
			done <- dsync.Flush(ctx, time.Second, func() error {
				mtx.Lock()
				order = append(order, "flush")
				mtx.Unlock()
				return nil
			})
		}()
		time.Sleep(10 * time.Millisecond)
		mtx.Lock()
		order = append(order, "invocation")
		mtx.Unlock()
		dsync.ReleaseProcessingLock(false)
		require.NoError(t, <-done)
		assert.Equal(t, []string{"invocation", "flush"}, order)
		assert.False(t, dsync.IsFlushing())
	})
	t.Run("flush releases on failure", func(t *testing.T) {
		dsync := New()
		failure := errors.New("failed")
		err := dsync.Flush(ctx, time.Second, func() error {
			assert.True(t, dsync.IsFlushing())
			return failure
		})
		assert.Equal(t, failure, err)
		assert.False(t, dsync.IsFlushing())
		assert.NoError(t, dsync.AcquireProcessingLock(ctx, false, 10*time.Millisecond))
	})
}
