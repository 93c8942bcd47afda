package pb

import (
	context "context"
	fmt "fmt"

	proto "github.com/golang/protobuf/proto"
	grpc "google.golang.org/grpc"
)

// Reference imports to suppress errors if they are not otherwise used.
var _ = proto.Marshal
var _ = fmt.Errorf

const _ = proto.ProtoPackageIsVersion3

type NodeMeta struct {
	ClusterName          string   `protobuf:"bytes,1,opt,name=ClusterName,proto3" json:"ClusterName,omitempty"`
	RPCAddress           string   `protobuf:"bytes,2,opt,name=RPCAddress,proto3" json:"RPCAddress,omitempty"`
	Started              int64    `protobuf:"varint,3,opt,name=Started,proto3" json:"Started,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *NodeMeta) Reset()         { *m = NodeMeta{} }
func (m *NodeMeta) String() string { return proto.CompactTextString(m) }
func (*NodeMeta) ProtoMessage()    {}

func (m *NodeMeta) GetClusterName() string {
	if m != nil {
		return m.ClusterName
	}
	return ""
}

func (m *NodeMeta) GetRPCAddress() string {
	if m != nil {
		return m.RPCAddress
	}
	return ""
}

func (m *NodeMeta) GetStarted() int64 {
	if m != nil {
		return m.Started
	}
	return 0
}

type InvokeRequest struct {
	Sender               string   `protobuf:"bytes,1,opt,name=Sender,proto3" json:"Sender,omitempty"`
	Payload              []byte   `protobuf:"bytes,2,opt,name=Payload,proto3" json:"Payload,omitempty"`
	OOB                  bool     `protobuf:"varint,3,opt,name=OOB,proto3" json:"OOB,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *InvokeRequest) Reset()         { *m = InvokeRequest{} }
func (m *InvokeRequest) String() string { return proto.CompactTextString(m) }
func (*InvokeRequest) ProtoMessage()    {}

func (m *InvokeRequest) GetSender() string {
	if m != nil {
		return m.Sender
	}
	return ""
}

func (m *InvokeRequest) GetPayload() []byte {
	if m != nil {
		return m.Payload
	}
	return nil
}

func (m *InvokeRequest) GetOOB() bool {
	if m != nil {
		return m.OOB
	}
	return false
}

type InvokeResponse struct {
	Payload              []byte   `protobuf:"bytes,1,opt,name=Payload,proto3" json:"Payload,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *InvokeResponse) Reset()         { *m = InvokeResponse{} }
func (m *InvokeResponse) String() string { return proto.CompactTextString(m) }
func (*InvokeResponse) ProtoMessage()    {}

func (m *InvokeResponse) GetPayload() []byte {
	if m != nil {
		return m.Payload
	}
	return nil
}

type FetchStateRequest struct {
	Sender               string   `protobuf:"bytes,1,opt,name=Sender,proto3" json:"Sender,omitempty"`
	StateID              string   `protobuf:"bytes,2,opt,name=StateID,proto3" json:"StateID,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *FetchStateRequest) Reset()         { *m = FetchStateRequest{} }
func (m *FetchStateRequest) String() string { return proto.CompactTextString(m) }
func (*FetchStateRequest) ProtoMessage()    {}

func (m *FetchStateRequest) GetSender() string {
	if m != nil {
		return m.Sender
	}
	return ""
}

func (m *FetchStateRequest) GetStateID() string {
	if m != nil {
		return m.StateID
	}
	return ""
}

type StateChunk struct {
	Data                 []byte   `protobuf:"bytes,1,opt,name=Data,proto3" json:"Data,omitempty"`
	Error                string   `protobuf:"bytes,2,opt,name=Error,proto3" json:"Error,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *StateChunk) Reset()         { *m = StateChunk{} }
func (m *StateChunk) String() string { return proto.CompactTextString(m) }
func (*StateChunk) ProtoMessage()    {}

func (m *StateChunk) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

func (m *StateChunk) GetError() string {
	if m != nil {
		return m.Error
	}
	return ""
}

type Message struct {
	Sender               string   `protobuf:"bytes,1,opt,name=Sender,proto3" json:"Sender,omitempty"`
	Payload              []byte   `protobuf:"bytes,2,opt,name=Payload,proto3" json:"Payload,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Message) Reset()         { *m = Message{} }
func (m *Message) String() string { return proto.CompactTextString(m) }
func (*Message) ProtoMessage()    {}

func (m *Message) GetSender() string {
	if m != nil {
		return m.Sender
	}
	return ""
}

func (m *Message) GetPayload() []byte {
	if m != nil {
		return m.Payload
	}
	return nil
}

func init() {
	proto.RegisterType((*NodeMeta)(nil), "grid.mesh.NodeMeta")
	proto.RegisterType((*InvokeRequest)(nil), "grid.mesh.InvokeRequest")
	proto.RegisterType((*InvokeResponse)(nil), "grid.mesh.InvokeResponse")
	proto.RegisterType((*FetchStateRequest)(nil), "grid.mesh.FetchStateRequest")
	proto.RegisterType((*StateChunk)(nil), "grid.mesh.StateChunk")
	proto.RegisterType((*Message)(nil), "grid.mesh.Message")
}

// Reference imports to suppress errors if they are not otherwise used.
var _ context.Context
var _ grpc.ClientConn

// This is a compile-time assertion to ensure that this file
// is compatible with the grpc package it is being compiled against.
const _ = grpc.SupportPackageIsVersion4

// MeshClient is the client API for Mesh service.
type MeshClient interface {
	Invoke(ctx context.Context, in *InvokeRequest, opts ...grpc.CallOption) (*InvokeResponse, error)
	FetchState(ctx context.Context, in *FetchStateRequest, opts ...grpc.CallOption) (Mesh_FetchStateClient, error)
}

type meshClient struct {
	cc *grpc.ClientConn
}

func NewMeshClient(cc *grpc.ClientConn) MeshClient {
	return &meshClient{cc}
}

func (c *meshClient) Invoke(ctx context.Context, in *InvokeRequest, opts ...grpc.CallOption) (*InvokeResponse, error) {
	out := new(InvokeResponse)
	err := c.cc.Invoke(ctx, "/grid.mesh.Mesh/Invoke", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *meshClient) FetchState(ctx context.Context, in *FetchStateRequest, opts ...grpc.CallOption) (Mesh_FetchStateClient, error) {
	stream, err := c.cc.NewStream(ctx, &_Mesh_serviceDesc.Streams[0], "/grid.mesh.Mesh/FetchState", opts...)
	if err != nil {
		return nil, err
	}
	x := &meshFetchStateClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type Mesh_FetchStateClient interface {
	Recv() (*StateChunk, error)
	grpc.ClientStream
}

type meshFetchStateClient struct {
	grpc.ClientStream
}

func (x *meshFetchStateClient) Recv() (*StateChunk, error) {
	m := new(StateChunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// MeshServer is the server API for Mesh service.
type MeshServer interface {
	Invoke(context.Context, *InvokeRequest) (*InvokeResponse, error)
	FetchState(*FetchStateRequest, Mesh_FetchStateServer) error
}

func RegisterMeshServer(s *grpc.Server, srv MeshServer) {
	s.RegisterService(&_Mesh_serviceDesc, srv)
}

func _Mesh_Invoke_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InvokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MeshServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/grid.mesh.Mesh/Invoke",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MeshServer).Invoke(ctx, req.(*InvokeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Mesh_FetchState_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(FetchStateRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MeshServer).FetchState(m, &meshFetchStateServer{stream})
}

type Mesh_FetchStateServer interface {
	Send(*StateChunk) error
	grpc.ServerStream
}

type meshFetchStateServer struct {
	grpc.ServerStream
}

func (x *meshFetchStateServer) Send(m *StateChunk) error {
	return x.ServerStream.SendMsg(m)
}

var _Mesh_serviceDesc = grpc.ServiceDesc{
	ServiceName: "grid.mesh.Mesh",
	HandlerType: (*MeshServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    _Mesh_Invoke_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "FetchState",
			Handler:       _Mesh_FetchState_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "mesh.proto",
}
