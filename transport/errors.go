package transport

import (
	"errors"
	"fmt"

	"github.com/vx-labs/grid/cluster"
)

var (
	ErrNotStarted = errors.New("transport is not started")
	// ErrNoValidResponses is returned when no recipient produced a usable response.
	ErrNoValidResponses = errors.New("timed out waiting for valid responses")
	// ErrUnsupportedOperation is returned by whole-node state transfer operations.
	ErrUnsupportedOperation = errors.New("operation is not supported")
)

// SuspectError is returned when a recipient was suspected during an invocation.
type SuspectError struct {
	Member cluster.Address
}

func (e *SuspectError) Error() string {
	return fmt.Sprintf("suspected member: %s", e.Member)
}

// TimeoutError is returned when a recipient did not answer an invocation in time.
type TimeoutError struct {
	Member cluster.Address
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("replication timeout for %s", e.Member)
}

func (e *TimeoutError) Timeout() bool { return true }
