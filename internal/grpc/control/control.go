// Package control defines the dsfd control service.
//
// The service has a single bidirectional Exec stream. Each frame is a JSON
// control-plane envelope carried in a protobuf well-known BytesValue, so the
// package needs no protoc/codegen toolchain.
package control

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "dsf.v1.Control"
	ExecMethod  = "/dsf.v1.Control/Exec"
)

// ControlServer is the server API for the Control service.
type ControlServer interface {
	Exec(Control_ExecServer) error
}

// UnimplementedControlServer can be embedded to have forward compatible implementations.
type UnimplementedControlServer struct{}

func (UnimplementedControlServer) Exec(Control_ExecServer) error {
	return status.Error(codes.Unimplemented, "method Exec not implemented")
}

// RegisterControlServer registers the Control service on a gRPC server.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&Control_ServiceDesc, srv)
}

// Control_ExecServer is the server side of the Exec stream.
type Control_ExecServer interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

type controlExecServer struct{ grpc.ServerStream }

func (x *controlExecServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func (x *controlExecServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Control_Exec_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ControlServer).Exec(&controlExecServer{stream})
}

// ControlClient is the client API for the Control service.
type ControlClient interface {
	Exec(ctx context.Context, opts ...grpc.CallOption) (Control_ExecClient, error)
}

// Control_ExecClient is the client side of the Exec stream.
type Control_ExecClient interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type controlClient struct{ cc grpc.ClientConnInterface }

func NewControlClient(cc grpc.ClientConnInterface) ControlClient { return &controlClient{cc: cc} }

func (c *controlClient) Exec(ctx context.Context, opts ...grpc.CallOption) (Control_ExecClient, error) {
	stream, err := c.cc.NewStream(ctx, &Control_ServiceDesc.Streams[0], ExecMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &controlExecClient{stream}, nil
}

type controlExecClient struct{ grpc.ClientStream }

func (x *controlExecClient) Send(m *wrapperspb.BytesValue) error {
	return x.ClientStream.SendMsg(m)
}

func (x *controlExecClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Control_ServiceDesc is the grpc.ServiceDesc for the Control service.
var Control_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exec",
			Handler:       _Control_Exec_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "dsf/v1/control.proto",
}

// Frame encodes an envelope as a stream frame.
func Frame(v any) (*wrapperspb.BytesValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return wrapperspb.Bytes(b), nil
}

// Unframe decodes a stream frame into v.
func Unframe(m *wrapperspb.BytesValue, v any) error {
	return json.Unmarshal(m.GetValue(), v)
}
