package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/engine"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "shopqueue.v1.Scheduling"

// Scheduler is the engine surface exposed to internal callers.
type Scheduler interface {
	GetWaitEstimate(ctx context.Context, shopID string, position int) (*int, error)
	RecalculatePositions(ctx context.Context, shopID string) (int, error)
	ListAppointmentSlots(ctx context.Context, q engine.SlotQuery) ([]engine.Slot, error)
	TransitionTicketStatus(ctx context.Context, req engine.TransitionRequest) (model.Ticket, error)
}

// SchedulingServer is implemented by Server. Messages are google.protobuf.Struct.
type SchedulingServer interface {
	GetWaitEstimate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecalculatePositions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointmentSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionTicketStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetWaitEstimate", SchedulingServer.GetWaitEstimate),
		unary("RecalculatePositions", SchedulingServer.RecalculatePositions),
		unary("ListAppointmentSlots", SchedulingServer.ListAppointmentSlots),
		unary("TransitionTicketStatus", SchedulingServer.TransitionTicketStatus),
	},
	Metadata: "shopqueue/v1/scheduling.proto",
}

func unary(name string, call func(SchedulingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulingServer), ctx, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type Server struct {
	scheduler Scheduler
	logger    *slog.Logger
}

func Register(srv grpc.ServiceRegistrar, scheduler Scheduler, logger *slog.Logger) {
	srv.RegisterService(&serviceDesc, &Server{scheduler: scheduler, logger: logger})
}

func (s *Server) GetWaitEstimate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	shopID := stringField(req, "shop_id")
	if shopID == "" {
		return nil, status.Error(codes.InvalidArgument, "shop_id is required")
	}
	position, err := intField(req, "position")
	if err != nil {
		return nil, err
	}

	wait, err := s.scheduler.GetWaitEstimate(ctx, shopID, position)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := map[string]any{"shop_id": shopID, "position": position, "wait_minutes": nil}
	if wait != nil {
		out["wait_minutes"] = *wait
	}
	return structpb.NewStruct(out)
}

func (s *Server) RecalculatePositions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	shopID := stringField(req, "shop_id")
	if shopID == "" {
		return nil, status.Error(codes.InvalidArgument, "shop_id is required")
	}

	n, err := s.scheduler.RecalculatePositions(ctx, shopID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"shop_id": shopID, "updated": n})
}

func (s *Server) ListAppointmentSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q := engine.SlotQuery{
		ShopID:    stringField(req, "shop_id"),
		Date:      stringField(req, "date"),
		ServiceID: stringField(req, "service_id"),
		ServerID:  stringField(req, "server_id"),
	}
	if _, ok := req.GetFields()["queue_clear_minutes"]; ok {
		minutes, err := intField(req, "queue_clear_minutes")
		if err != nil {
			return nil, err
		}
		if minutes < 0 {
			return nil, status.Error(codes.InvalidArgument, "queue_clear_minutes must be a non-negative integer")
		}
		q.QueueClearMinutes = &minutes
	}

	slots, err := s.scheduler.ListAppointmentSlots(ctx, q)
	if err != nil {
		return nil, s.toStatus(err)
	}
	items := make([]any, 0, len(slots))
	for _, slot := range slots {
		items = append(items, map[string]any{"time": slot.Time, "available": slot.Available})
	}
	return structpb.NewStruct(map[string]any{"shop_id": q.ShopID, "date": q.Date, "slots": items})
}

func (s *Server) TransitionTicketStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	t, err := s.scheduler.TransitionTicketStatus(ctx, engine.TransitionRequest{
		TicketID:         stringField(req, "ticket_id"),
		Status:           model.TicketStatus(stringField(req, "status")),
		AssignedServerID: stringField(req, "assigned_server_id"),
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := map[string]any{
		"id":                 t.ID,
		"shop_id":            t.ShopID,
		"status":             string(t.Status),
		"type":               string(t.Type),
		"assigned_server_id": t.AssignedServerID,
		"position":           t.Position,
	}
	return structpb.NewStruct(out)
}

// toStatus maps engine error kinds onto gRPC codes. Unknown errors are logged and hidden.
func (s *Server) toStatus(err error) error {
	e, ok := engine.AsError(err)
	if !ok {
		s.logger.Error("grpc call failed", "err", err)
		return status.Error(codes.Internal, "internal error")
	}
	code := codes.Internal
	switch {
	case errors.Is(e.Kind, engine.ErrNotFound):
		code = codes.NotFound
	case errors.Is(e.Kind, engine.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(e.Kind, engine.ErrCapacityExceeded):
		code = codes.ResourceExhausted
	case errors.Is(e.Kind, engine.ErrUnavailable):
		code = codes.FailedPrecondition
	}
	return status.Error(code, e.Message)
}

func stringField(s *structpb.Struct, key string) string {
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

func intField(s *structpb.Struct, key string) (int, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int(n.NumberValue), nil
}
