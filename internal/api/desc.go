package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wppsync.v1.Engine"

// EngineServer is the server side of the daemon API. Every request and
// response travels as a google.protobuf.Struct holding one of the types in
// types.go.
type EngineServer interface {
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListContacts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadMoreContacts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EditMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resync(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPairing(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStream) error
}

type unaryCall func(EngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryMethod builds the descriptor for one unary method, running the
// server's interceptor chain like generated code does.
func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(EngineServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EngineServer).WatchEvents(in, stream)
}

var watchEventsDesc = grpc.StreamDesc{
	StreamName:    "WatchEvents",
	Handler:       watchEventsHandler,
	ServerStreams: true,
}

// ServiceDesc describes the Engine service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetStatus", EngineServer.GetStatus),
		unaryMethod("ListContacts", EngineServer.ListContacts),
		unaryMethod("LoadMoreContacts", EngineServer.LoadMoreContacts),
		unaryMethod("OpenConversation", EngineServer.OpenConversation),
		unaryMethod("ListMessages", EngineServer.ListMessages),
		unaryMethod("SendText", EngineServer.SendText),
		unaryMethod("EditMessage", EngineServer.EditMessage),
		unaryMethod("DeleteMessage", EngineServer.DeleteMessage),
		unaryMethod("Resync", EngineServer.Resync),
		unaryMethod("GetPairing", EngineServer.GetPairing),
		unaryMethod("ListActions", EngineServer.ListActions),
	},
	Streams:  []grpc.StreamDesc{watchEventsDesc},
	Metadata: "wppsync/v1/engine.proto",
}

// RegisterEngineServer registers srv on s.
func RegisterEngineServer(s grpc.ServiceRegistrar, srv EngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}
