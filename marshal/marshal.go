// Package marshal encodes the commands and responses exchanged by the rpc dispatcher as
// protobuf envelopes. Payloads must be protobuf messages registered with
// proto.RegisterType; strings, byte slices, booleans, int64 and float64 values are
// carried as well-known wrapper messages.
package marshal

import (
	"errors"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes"
	"github.com/golang/protobuf/ptypes/any"
	"github.com/golang/protobuf/ptypes/wrappers"
	pkgerrors "github.com/pkg/errors"
	"github.com/vx-labs/grid/marshal/pb"
	"github.com/vx-labs/grid/rpc"
)

// ErrUnsupportedValue is returned when a value has no protobuf representation.
var ErrUnsupportedValue = errors.New("value cannot be encoded")

type Marshaller struct{}

func New() *Marshaller {
	return &Marshaller{}
}

var _ rpc.Marshaller = &Marshaller{}

func (m *Marshaller) Marshal(v interface{}) ([]byte, error) {
	envelope, err := encodeEnvelope(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(envelope)
}

func (m *Marshaller) Unmarshal(b []byte) (interface{}, error) {
	envelope := &pb.Envelope{}
	if err := proto.Unmarshal(b, envelope); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode envelope")
	}
	return decodeEnvelope(envelope)
}

func encodeEnvelope(v interface{}) (*pb.Envelope, error) {
	switch v := v.(type) {
	case nil:
		return &pb.Envelope{Kind: pb.Envelope_NIL}, nil
	case *rpc.Request:
		payload, err := encodeValue(v.Command)
		if err != nil {
			return nil, err
		}
		return &pb.Envelope{Kind: pb.Envelope_REQUEST, Payload: payload, Replayable: v.Replayable}, nil
	case *rpc.SuccessfulResponse:
		payload, err := encodeValue(v.Value)
		if err != nil {
			return nil, err
		}
		return &pb.Envelope{Kind: pb.Envelope_SUCCESS, Payload: payload}, nil
	case *rpc.UnsuccessfulResponse:
		return &pb.Envelope{Kind: pb.Envelope_UNSUCCESSFUL}, nil
	case *rpc.ExceptionResponse:
		envelope := &pb.Envelope{Kind: pb.Envelope_EXCEPTION}
		var replicationErr *rpc.ReplicationError
		switch {
		case v.Err == nil:
		case errors.As(v.Err, &replicationErr):
			envelope.Replication = true
			envelope.Error = replicationErr.Reason
		default:
			envelope.Error = v.Err.Error()
		}
		return envelope, nil
	default:
		payload, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		return &pb.Envelope{Kind: pb.Envelope_MESSAGE, Payload: payload}, nil
	}
}

func decodeEnvelope(envelope *pb.Envelope) (interface{}, error) {
	switch envelope.Kind {
	case pb.Envelope_NIL:
		return nil, nil
	case pb.Envelope_REQUEST:
		command, err := decodeValue(envelope.Payload)
		if err != nil {
			return nil, err
		}
		return &rpc.Request{Command: command, Replayable: envelope.Replayable}, nil
	case pb.Envelope_SUCCESS:
		value, err := decodeValue(envelope.Payload)
		if err != nil {
			return nil, err
		}
		return &rpc.SuccessfulResponse{Value: value}, nil
	case pb.Envelope_UNSUCCESSFUL:
		return &rpc.UnsuccessfulResponse{}, nil
	case pb.Envelope_EXCEPTION:
		if envelope.Replication {
			return &rpc.ExceptionResponse{Err: &rpc.ReplicationError{Reason: envelope.Error}}, nil
		}
		return &rpc.ExceptionResponse{Err: &rpc.RemoteError{Message: envelope.Error}}, nil
	case pb.Envelope_MESSAGE:
		return decodeValue(envelope.Payload)
	}
	return nil, pkgerrors.Errorf("unknown envelope kind %d", envelope.Kind)
}

func encodeValue(v interface{}) (*any.Any, error) {
	var msg proto.Message
	switch v := v.(type) {
	case nil:
		return nil, nil
	case proto.Message:
		msg = v
	case string:
		msg = &wrappers.StringValue{Value: v}
	case []byte:
		msg = &wrappers.BytesValue{Value: v}
	case bool:
		msg = &wrappers.BoolValue{Value: v}
	case int64:
		msg = &wrappers.Int64Value{Value: v}
	case float64:
		msg = &wrappers.DoubleValue{Value: v}
	default:
		return nil, pkgerrors.Wrapf(ErrUnsupportedValue, "type %T", v)
	}
	payload, err := ptypes.MarshalAny(msg)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to encode %T", v)
	}
	return payload, nil
}

func decodeValue(payload *any.Any) (interface{}, error) {
	if payload == nil {
		return nil, nil
	}
	var dynamic ptypes.DynamicAny
	if err := ptypes.UnmarshalAny(payload, &dynamic); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode %s", payload.TypeUrl)
	}
	switch v := dynamic.Message.(type) {
	case *wrappers.StringValue:
		return v.Value, nil
	case *wrappers.BytesValue:
		return v.Value, nil
	case *wrappers.BoolValue:
		return v.Value, nil
	case *wrappers.Int64Value:
		return v.Value, nil
	case *wrappers.DoubleValue:
		return v.Value, nil
	}
	return dynamic.Message, nil
}
