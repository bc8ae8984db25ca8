package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "marketclock.v1.Calendar"

// Method names of the Calendar service.
const (
	MethodIsOpen                = "IsOpen"
	MethodIsDateOpen            = "IsDateOpen"
	MethodNextMarketOpen        = "NextMarketOpen"
	MethodNextMarketClose       = "NextMarketClose"
	MethodStartTimeForTradeBars = "StartTimeForTradeBars"
)

// CalendarServer is the server API for the Calendar service. Requests and
// responses are generic structs; instants travel as RFC 3339 strings.
type CalendarServer interface {
	IsOpen(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IsDateOpen(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NextMarketOpen(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NextMarketClose(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartTimeForTradeBars(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(CalendarServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// CalendarServiceDesc describes the Calendar service for grpc.Server.
var CalendarServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalendarServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodIsOpen, Handler: unaryHandler(MethodIsOpen, CalendarServer.IsOpen)},
		{MethodName: MethodIsDateOpen, Handler: unaryHandler(MethodIsDateOpen, CalendarServer.IsDateOpen)},
		{MethodName: MethodNextMarketOpen, Handler: unaryHandler(MethodNextMarketOpen, CalendarServer.NextMarketOpen)},
		{MethodName: MethodNextMarketClose, Handler: unaryHandler(MethodNextMarketClose, CalendarServer.NextMarketClose)},
		{MethodName: MethodStartTimeForTradeBars, Handler: unaryHandler(MethodStartTimeForTradeBars, CalendarServer.StartTimeForTradeBars)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketclock/v1/calendar.proto",
}

// RegisterCalendarServer registers srv on gs.
func RegisterCalendarServer(gs grpc.ServiceRegistrar, srv CalendarServer) {
	gs.RegisterService(&CalendarServiceDesc, srv)
}

// FullMethod returns the wire path of a Calendar method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler(method string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CalendarServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(CalendarServer), ctx, req.(*structpb.Struct))
		})
	}
}
