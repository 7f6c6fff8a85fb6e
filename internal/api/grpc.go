package api

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/services"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "mirador.resilience.v1.ResilienceMonitor"

// ResilienceMonitorServer is the server API for the resilience monitor service. Requests and
// responses use the well-known protobuf types so no code generation step is needed.
type ResilienceMonitorServer interface {
	ProcessMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetHistory(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error)
	GetStatistics(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Reset(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	FitTransition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes ResilienceMonitor for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResilienceMonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ProcessMetrics", func(s ResilienceMonitorServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.ProcessMetrics(ctx, in)
		}),
		unaryMethod("GetStatus", func(s ResilienceMonitorServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetStatus(ctx, in)
		}),
		unaryMethod("GetHistory", func(s ResilienceMonitorServer, ctx context.Context, in *wrapperspb.Int32Value) (any, error) {
			return s.GetHistory(ctx, in)
		}),
		unaryMethod("GetStatistics", func(s ResilienceMonitorServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetStatistics(ctx, in)
		}),
		unaryMethod("Reset", func(s ResilienceMonitorServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Reset(ctx, in)
		}),
		unaryMethod("FitTransition", func(s ResilienceMonitorServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.FitTransition(ctx, in)
		}),
		unaryMethod("RecordTransactions", func(s ResilienceMonitorServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.RecordTransactions(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/resilience/v1/resilience.proto",
}

// RegisterResilienceMonitorServer registers srv on the supplied registrar.
func RegisterResilienceMonitorServer(s grpc.ServiceRegistrar, srv ResilienceMonitorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryMethod[Req any](name string, call func(ResilienceMonitorServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ResilienceMonitorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ResilienceMonitorServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// GRPCHandler implements ResilienceMonitorServer on top of MonitorService.
type GRPCHandler struct {
	logger  *slog.Logger
	service *services.MonitorService
}

// NewGRPCHandler constructs the gRPC facade.
func NewGRPCHandler(logger *slog.Logger, service *services.MonitorService) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{logger: logger, service: service}
}

// ProcessMetrics ingests one sample and returns the snapshot.
func (h *GRPCHandler) ProcessMetrics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	var sample models.MetricSample
	if err := decodeMessage(req, &sample); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	snapshot, err := h.service.ProcessMetrics(ctx, sample)
	if err != nil {
		return nil, toStatusError(err)
	}
	return h.respond(encodeStruct(snapshot))
}

// GetStatus returns the flat status map.
func (h *GRPCHandler) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	current, err := h.service.Status(ctx)
	if err != nil {
		return nil, toStatusError(err)
	}
	return h.respond(encodeStruct(current))
}

// GetHistory returns up to n condensed snapshots; n <= 0 returns the whole window.
func (h *GRPCHandler) GetHistory(_ context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	entries, err := h.service.History(int(req.GetValue()))
	if err != nil {
		return nil, toStatusError(err)
	}
	out, err := encodeList(entries)
	if err != nil {
		h.logger.Error("encode history failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode history")
	}
	return out, nil
}

// GetStatistics returns aggregates over the retained window, or {"status":"no_data"}.
func (h *GRPCHandler) GetStatistics(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats, ok, err := h.service.Statistics()
	if err != nil {
		return nil, toStatusError(err)
	}
	if !ok {
		return h.respond(encodeStruct(map[string]any{"status": "no_data"}))
	}
	return h.respond(encodeStruct(stats))
}

// Reset clears the monitor.
func (h *GRPCHandler) Reset(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := h.service.Reset(ctx); err != nil {
		return nil, toStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

// FitTransition fits the transition matrix from supplied, synthetic or retained data.
func (h *GRPCHandler) FitTransition(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var fit models.FitRequest
	if req != nil {
		if err := decodeMessage(req, &fit); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	result, err := h.service.FitTransition(ctx, fit)
	if err != nil {
		return nil, toStatusError(err)
	}
	return h.respond(encodeStruct(result))
}

// RecordTransactions feeds a transaction batch into the sample collector.
func (h *GRPCHandler) RecordTransactions(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	var batch models.TransactionBatch
	if err := decodeMessage(req, &batch); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	stats, err := h.service.RecordTransactions(batch)
	if err != nil {
		return nil, toStatusError(err)
	}
	return h.respond(encodeStruct(stats))
}

func (h *GRPCHandler) respond(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		h.logger.Error("encode response failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
