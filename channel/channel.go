package channel

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrUnreachable is returned by a substrate call when the destination is not part
	// of the current membership, or has been declared failed.
	ErrUnreachable = errors.New("member is unreachable")
	// ErrClosed is returned when an operation is attempted on a closed channel.
	ErrClosed = errors.New("channel is closed")
	// ErrNotMember is returned when a state source is not part of the current membership.
	ErrNotMember = errors.New("member is not part of the view")
)

// Addr is the identity of a member on the messaging substrate.
type Addr string

// View is an ordered snapshot of the members of a channel. The substrate keeps the
// same order on every member.
type View struct {
	ID      uint64
	Members []Addr
}

// Option is a boolean channel setting.
type Option int

const (
	// OptionLocal enables self-delivery of broadcasts.
	OptionLocal Option = iota
	// OptionAutoReconnect makes the channel retry joining its peers when it ends up alone.
	OptionAutoReconnect
	// OptionAutoGetState makes the channel fetch the whole node state from the
	// coordinator right after connecting.
	OptionAutoGetState
	// OptionBlock enables flow control notifications: the receiver is sent Block before
	// a new view is installed and Unblock afterwards.
	OptionBlock
)

// SendMode describes how many responses a request waits for.
type SendMode int

const (
	GetNone SendMode = iota
	GetAll
	GetMajority
)

func (m SendMode) String() string {
	switch m {
	case GetNone:
		return "get_none"
	case GetAll:
		return "get_all"
	case GetMajority:
		return "get_majority"
	}
	return "unknown"
}

// Rsp is the outcome of a request for one member.
type Rsp struct {
	Sender    Addr
	Received  bool
	Suspected bool
	Value     []byte
}

// RspFilter may end a request before every expected response has arrived.
type RspFilter interface {
	IsAcceptable(value []byte, sender Addr) bool
	NeedMoreResponses() bool
}

// Request describes an outbound message.
type Request struct {
	// Destinations is the recipient list. A nil list sends to every member of the view.
	Destinations []Addr
	Payload      []byte
	Mode         SendMode
	Timeout      time.Duration
	// OOB requests are not ordered with the other requests of the same sender.
	OOB    bool
	Filter RspFilter
}

// RequestHandler processes inbound requests and returns the encoded response.
type RequestHandler interface {
	HandleRequest(ctx context.Context, sender Addr, payload []byte) []byte
}

// Receiver is notified of membership, message and state events. Callbacks are run on
// substrate goroutines.
type Receiver interface {
	ViewAccepted(view View)
	Suspect(member Addr)
	Block()
	Unblock()
	Receive(sender Addr, payload []byte)

	// WriteState and ApplyState transfer the state of the whole node.
	WriteState(w io.Writer) error
	ApplyState(r io.Reader) error
	// WriteResourceState streams the state of one named resource into w. The receiver
	// owns w and must close it.
	WriteResourceState(stateID string, w io.WriteCloser)
	// ApplyResourceState applies the state of one named resource read from r. The
	// receiver owns r and must close it.
	ApplyResourceState(stateID string, r io.ReadCloser)
}

// Channel is the messaging substrate consumed by the transport.
type Channel interface {
	SetReceiver(r Receiver)
	SetRequestHandler(h RequestHandler)
	SetOption(opt Option, value bool)
	Option(opt Option) bool
	Connect(clusterName string) error
	Disconnect() error
	Close() error
	IsOpen() bool
	LocalAddress() Addr
	View() View
	Send(ctx context.Context, req Request) ([]Rsp, error)
	// RequestState asks source to stream the state identified by stateID. The state is
	// delivered through the receiver's ApplyResourceState callback. An empty stateID
	// denotes the whole node state.
	RequestState(ctx context.Context, source Addr, stateID string, timeout time.Duration) error
	SupportsStateTransfer() bool
}

// StateCloser is implemented by state sinks able to report a producer failure to the
// consumer side of the stream.
type StateCloser interface {
	CloseWithError(err error) error
}
