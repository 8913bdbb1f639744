// Package grpcapi exposes the document API over gRPC. Messages are
// google.protobuf.Struct values so no generated code is needed:
//
//	List   {resource, fields}        -> {status, result: [documents]}
//	Save   {resource, fields}        -> {status, result: [messages]}
//	Delete {resource, name[, item]}  -> {status, result: [messages]}
//
// Outcomes outside 2xx are returned as status errors.
package grpcapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/devghori1264/quads/internal/models"
	"github.com/devghori1264/quads/internal/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "quads.v2.Documents"

type documentsServer interface {
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Save(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*documentsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: unary("List", documentsServer.List)},
		{MethodName: "Save", Handler: unary("Save", documentsServer.Save)},
		{MethodName: "Delete", Handler: unary("Delete", documentsServer.Delete)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quads/v2/documents",
}

func unary(method string, call func(documentsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(documentsServer), ctx, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, handler)
	}
}

// Service implements the Documents service on top of the core handlers.
type Service struct {
	srv *server.Server
}

// Register binds the Documents service and the standard health service.
func Register(gs *grpc.Server, srv *server.Server) {
	gs.RegisterService(&serviceDesc, &Service{srv: srv})
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
}

func (s *Service) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := str(req, "resource")
	if h, ok := s.srv.Resource(name); ok {
		return reply(h.List(ctx, fields(req)))
	}
	if h, ok := s.srv.Property(name); ok {
		return reply(h.List(ctx))
	}
	return nil, status.Errorf(codes.NotFound, "unknown resource %s", name)
}

func (s *Service) Save(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := str(req, "resource")
	if h, ok := s.srv.Resource(name); ok {
		return reply(h.Save(ctx, fields(req)))
	}
	if h, ok := s.srv.Property(name); ok {
		return reply(h.Save(ctx, fields(req)))
	}
	return nil, status.Errorf(codes.NotFound, "unknown resource %s", name)
}

func (s *Service) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := str(req, "resource")
	if h, ok := s.srv.Resource(name); ok {
		return reply(h.Delete(ctx, str(req, "name")))
	}
	if h, ok := s.srv.Property(name); ok {
		return reply(h.Remove(ctx, str(req, "item"), str(req, "name")))
	}
	return nil, status.Errorf(codes.NotFound, "unknown resource %s", name)
}

func reply(res server.Result) (*structpb.Struct, error) {
	if !res.OK() {
		return nil, status.Error(code(res.Status), strings.Join(res.Messages, "; "))
	}
	var result []any
	switch p := res.Payload().(type) {
	case []models.Document:
		for _, d := range p {
			result = append(result, map[string]any(d))
		}
	default:
		for _, m := range res.Messages {
			result = append(result, m)
		}
	}
	out, err := structpb.NewStruct(map[string]any{
		"status": float64(res.Status),
		"result": result,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func code(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

func str(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func fields(req *structpb.Struct) models.Fields {
	out := models.Fields{}
	for k, v := range req.GetFields()["fields"].GetStructValue().GetFields() {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			out[k] = kind.StringValue
		case *structpb.Value_BoolValue:
			out[k] = strconv.FormatBool(kind.BoolValue)
		case *structpb.Value_NumberValue:
			out[k] = strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_ListValue:
			parts := make([]string, 0, len(kind.ListValue.GetValues()))
			for _, e := range kind.ListValue.GetValues() {
				parts = append(parts, e.GetStringValue())
			}
			out[k] = strings.Join(parts, ",")
		}
	}
	return out
}
