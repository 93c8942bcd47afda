package pb

import (
	fmt "fmt"

	proto "github.com/golang/protobuf/proto"
)

// Reference imports to suppress errors if they are not otherwise used.
var _ = proto.Marshal
var _ = fmt.Errorf

const _ = proto.ProtoPackageIsVersion3

type Entry struct {
	Key                  string   `protobuf:"bytes,1,opt,name=Key,proto3" json:"Key,omitempty"`
	Value                []byte   `protobuf:"bytes,2,opt,name=Value,proto3" json:"Value,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Entry) Reset()         { *m = Entry{} }
func (m *Entry) String() string { return proto.CompactTextString(m) }
func (*Entry) ProtoMessage()    {}

func (m *Entry) GetKey() string {
	if m != nil {
		return m.Key
	}
	return ""
}

func (m *Entry) GetValue() []byte {
	if m != nil {
		return m.Value
	}
	return nil
}

type PutCommand struct {
	Resource             string   `protobuf:"bytes,1,opt,name=Resource,proto3" json:"Resource,omitempty"`
	Key                  string   `protobuf:"bytes,2,opt,name=Key,proto3" json:"Key,omitempty"`
	Value                []byte   `protobuf:"bytes,3,opt,name=Value,proto3" json:"Value,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *PutCommand) Reset()         { *m = PutCommand{} }
func (m *PutCommand) String() string { return proto.CompactTextString(m) }
func (*PutCommand) ProtoMessage()    {}

func (m *PutCommand) GetResource() string {
	if m != nil {
		return m.Resource
	}
	return ""
}

func (m *PutCommand) GetKey() string {
	if m != nil {
		return m.Key
	}
	return ""
}

func (m *PutCommand) GetValue() []byte {
	if m != nil {
		return m.Value
	}
	return nil
}

type DeleteCommand struct {
	Resource             string   `protobuf:"bytes,1,opt,name=Resource,proto3" json:"Resource,omitempty"`
	Key                  string   `protobuf:"bytes,2,opt,name=Key,proto3" json:"Key,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *DeleteCommand) Reset()         { *m = DeleteCommand{} }
func (m *DeleteCommand) String() string { return proto.CompactTextString(m) }
func (*DeleteCommand) ProtoMessage()    {}

func (m *DeleteCommand) GetResource() string {
	if m != nil {
		return m.Resource
	}
	return ""
}

func (m *DeleteCommand) GetKey() string {
	if m != nil {
		return m.Key
	}
	return ""
}

type GetCommand struct {
	Resource             string   `protobuf:"bytes,1,opt,name=Resource,proto3" json:"Resource,omitempty"`
	Key                  string   `protobuf:"bytes,2,opt,name=Key,proto3" json:"Key,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *GetCommand) Reset()         { *m = GetCommand{} }
func (m *GetCommand) String() string { return proto.CompactTextString(m) }
func (*GetCommand) ProtoMessage()    {}

func (m *GetCommand) GetResource() string {
	if m != nil {
		return m.Resource
	}
	return ""
}

func (m *GetCommand) GetKey() string {
	if m != nil {
		return m.Key
	}
	return ""
}

func init() {
	proto.RegisterType((*Entry)(nil), "grid.store.Entry")
	proto.RegisterType((*PutCommand)(nil), "grid.store.PutCommand")
	proto.RegisterType((*DeleteCommand)(nil), "grid.store.DeleteCommand")
	proto.RegisterType((*GetCommand)(nil), "grid.store.GetCommand")
}
