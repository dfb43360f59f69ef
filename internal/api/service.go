// Package api exposes the sync core over gRPC. Requests and responses are
// protobuf well-known types, so no generated code is needed.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "inbox.v1.Inbox"

// InboxServer is the server side of the Inbox service.
type InboxServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Unread(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Users(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Open(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Failures(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Retry(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Download(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	Notifications(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	MarkNotificationsRead(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Logout(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	WatchUnread(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes the Inbox service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InboxServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", InboxServer.Status),
		unary("Unread", InboxServer.Unread),
		unary("Users", InboxServer.Users),
		unary("Open", InboxServer.Open),
		unary("Send", InboxServer.Send),
		unary("Failures", InboxServer.Failures),
		unary("Retry", InboxServer.Retry),
		unary("Download", InboxServer.Download),
		unary("Notifications", InboxServer.Notifications),
		unary("MarkNotificationsRead", InboxServer.MarkNotificationsRead),
		unary("Logout", InboxServer.Logout),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchUnread",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(InboxServer).WatchUnread(in, stream)
			},
		},
	},
	Metadata: "inbox/v1/inbox.proto",
}

// Register attaches srv to s.
func Register(s *grpc.Server, srv InboxServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary adapts a typed method expression into a grpc.MethodDesc.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](name string, call func(InboxServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InboxServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(InboxServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
