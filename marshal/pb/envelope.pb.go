package pb

import (
	fmt "fmt"

	proto "github.com/golang/protobuf/proto"
	any "github.com/golang/protobuf/ptypes/any"
)

// Reference imports to suppress errors if they are not otherwise used.
var _ = proto.Marshal
var _ = fmt.Errorf

const _ = proto.ProtoPackageIsVersion3

type Envelope_Kind int32

const (
	Envelope_NIL          Envelope_Kind = 0
	Envelope_MESSAGE      Envelope_Kind = 1
	Envelope_REQUEST      Envelope_Kind = 2
	Envelope_SUCCESS      Envelope_Kind = 3
	Envelope_EXCEPTION    Envelope_Kind = 4
	Envelope_UNSUCCESSFUL Envelope_Kind = 5
)

var Envelope_Kind_name = map[int32]string{
	0: "NIL",
	1: "MESSAGE",
	2: "REQUEST",
	3: "SUCCESS",
	4: "EXCEPTION",
	5: "UNSUCCESSFUL",
}

var Envelope_Kind_value = map[string]int32{
	"NIL":          0,
	"MESSAGE":      1,
	"REQUEST":      2,
	"SUCCESS":      3,
	"EXCEPTION":    4,
	"UNSUCCESSFUL": 5,
}

func (x Envelope_Kind) String() string {
	return proto.EnumName(Envelope_Kind_name, int32(x))
}

type Envelope struct {
	Kind                 Envelope_Kind `protobuf:"varint,1,opt,name=Kind,proto3,enum=grid.marshal.Envelope_Kind" json:"Kind,omitempty"`
	Payload              *any.Any      `protobuf:"bytes,2,opt,name=Payload,proto3" json:"Payload,omitempty"`
	Replayable           bool          `protobuf:"varint,3,opt,name=Replayable,proto3" json:"Replayable,omitempty"`
	Error                string        `protobuf:"bytes,4,opt,name=Error,proto3" json:"Error,omitempty"`
	Replication          bool          `protobuf:"varint,5,opt,name=Replication,proto3" json:"Replication,omitempty"`
	XXX_NoUnkeyedLiteral struct{}      `json:"-"`
	XXX_unrecognized     []byte        `json:"-"`
	XXX_sizecache        int32         `json:"-"`
}

func (m *Envelope) Reset()         { *m = Envelope{} }
func (m *Envelope) String() string { return proto.CompactTextString(m) }
func (*Envelope) ProtoMessage()    {}

func (m *Envelope) GetKind() Envelope_Kind {
	if m != nil {
		return m.Kind
	}
	return Envelope_NIL
}

func (m *Envelope) GetPayload() *any.Any {
	if m != nil {
		return m.Payload
	}
	return nil
}

func (m *Envelope) GetReplayable() bool {
	if m != nil {
		return m.Replayable
	}
	return false
}

func (m *Envelope) GetError() string {
	if m != nil {
		return m.Error
	}
	return ""
}

func (m *Envelope) GetReplication() bool {
	if m != nil {
		return m.Replication
	}
	return false
}

func init() {
	proto.RegisterEnum("grid.marshal.Envelope_Kind", Envelope_Kind_name, Envelope_Kind_value)
	proto.RegisterType((*Envelope)(nil), "grid.marshal.Envelope")
}
