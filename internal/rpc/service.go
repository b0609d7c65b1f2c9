package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Handler serves one unary method.
type Handler func(ctx context.Context, req *dynamicpb.Message) (proto.Message, error)

// Handlers maps method names to handlers.
type Handlers map[string]Handler

// FullMethod returns the gRPC method path, e.g. "/pkg.Service/Method".
func FullMethod(md protoreflect.MethodDescriptor) string {
	return fmt.Sprintf("/%s/%s", md.Parent().FullName(), md.Name())
}

// Register adds sd to server. Every method in sd must have a handler.
func Register(server grpc.ServiceRegistrar, sd protoreflect.ServiceDescriptor, handlers Handlers) error {
	desc := &grpc.ServiceDesc{
		ServiceName: string(sd.FullName()),
		HandlerType: (*any)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    sd.ParentFile().Path(),
	}

	methods := sd.Methods()
	for i := 0; i < methods.Len(); i++ {
		md := methods.Get(i)
		h, ok := handlers[string(md.Name())]
		if !ok {
			return fmt.Errorf("%s: no handler for %s", sd.FullName(), md.Name())
		}
		desc.Methods = append(desc.Methods, methodDesc(md, h))
	}

	server.RegisterService(desc, handlers)
	return nil
}

func methodDesc(md protoreflect.MethodDescriptor, h Handler) grpc.MethodDesc {
	fullMethod := FullMethod(md)
	return grpc.MethodDesc{
		MethodName: string(md.Name()),
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := dynamicpb.NewMessage(md.Input())
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return h(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(ctx, req.(*dynamicpb.Message))
			})
		},
	}
}

// Invoke calls a unary method and decodes the reply as a dynamic message.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, md protoreflect.MethodDescriptor, req proto.Message, opts ...grpc.CallOption) (*dynamicpb.Message, error) {
	out := dynamicpb.NewMessage(md.Output())
	if err := conn.Invoke(ctx, FullMethod(md), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
