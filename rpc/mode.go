package rpc

import (
	"fmt"

	"github.com/vx-labs/grid/channel"
)

// ResponseMode is the wait contract of a remote invocation.
type ResponseMode int

const (
	// FireAndForget sends the command and does not wait for any response.
	FireAndForget ResponseMode = iota
	// Synchronous waits for every recipient to answer or to be declared unreachable.
	Synchronous
	// SynchronousWithAsyncMarshalling returns immediately; the command is encoded and
	// sent in the background.
	SynchronousWithAsyncMarshalling
	// WaitForFirstValid waits for a majority of recipients.
	WaitForFirstValid
)

func (m ResponseMode) String() string {
	switch m {
	case FireAndForget:
		return "fire_and_forget"
	case Synchronous:
		return "synchronous"
	case SynchronousWithAsyncMarshalling:
		return "synchronous_with_async_marshalling"
	case WaitForFirstValid:
		return "wait_for_first_valid"
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

// IsAsynchronous reports whether callers get an empty result without waiting for responses.
func (m ResponseMode) IsAsynchronous() bool {
	return m == FireAndForget || m == SynchronousWithAsyncMarshalling
}

// SendMode maps m to the substrate send semantics. It panics on an unknown mode.
func (m ResponseMode) SendMode() channel.SendMode {
	switch m {
	case FireAndForget, SynchronousWithAsyncMarshalling:
		return channel.GetNone
	case Synchronous:
		return channel.GetAll
	case WaitForFirstValid:
		return channel.GetMajority
	}
	panic(fmt.Sprintf("unknown response mode %d", int(m)))
}
