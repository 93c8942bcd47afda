package rpc

import (
	"errors"
	"fmt"

	"github.com/vx-labs/grid/cluster"
)

// Response is the outcome of a command executed by a remote member.
type Response interface {
	IsSuccessful() bool
	IsValid() bool
}

type SuccessfulResponse struct {
	Value interface{}
}

func (r *SuccessfulResponse) IsSuccessful() bool { return true }
func (r *SuccessfulResponse) IsValid() bool      { return true }

// UnsuccessfulResponse is returned by members that could not produce a value, for
// instance because they do not own the requested data.
type UnsuccessfulResponse struct{}

func (r *UnsuccessfulResponse) IsSuccessful() bool { return false }
func (r *UnsuccessfulResponse) IsValid() bool      { return true }

// ExceptionResponse carries a failure raised by the remote member.
type ExceptionResponse struct {
	Err error
}

func (r *ExceptionResponse) IsSuccessful() bool { return false }
func (r *ExceptionResponse) IsValid() bool      { return false }

// ReplicationError is raised by a member that momentarily refused a command for
// clustering reasons. It is not an application failure.
type ReplicationError struct {
	Reason string
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("replication refused: %s", e.Reason)
}

// IsReplicationError reports whether err is, or wraps, a ReplicationError.
func IsReplicationError(err error) bool {
	var target *ReplicationError
	return errors.As(err, &target)
}

// RemoteError is an application failure raised by a remote member.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// ResponseState tells what happened to one recipient of an invocation.
type ResponseState int

const (
	Received ResponseState = iota
	Suspected
	NotReceived
)

func (s ResponseState) String() string {
	switch s {
	case Received:
		return "received"
	case Suspected:
		return "suspected"
	case NotReceived:
		return "not_received"
	}
	return "unknown"
}

// RawResponse is the per-member outcome of one invocation.
type RawResponse struct {
	Sender cluster.Address
	State  ResponseState
	Value  Response
}

// ResponseFilter lets callers stop waiting once enough responses have arrived.
type ResponseFilter interface {
	IsAcceptable(response Response, sender cluster.Address) bool
	NeedMoreResponses() bool
}
