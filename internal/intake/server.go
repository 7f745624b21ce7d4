// Package intake exposes the pipeline over gRPC on a Unix socket. Form
// submissions and manual edits arrive as structpb.Struct messages; the
// service is declared in proto/bikeshare/intake/v1/intake.proto and its
// descriptor is kept here so the wire format needs no generated code.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/orchestrator"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "bikeshare.intake.v1.Intake"

const (
	submitMethod = "/" + ServiceName + "/Submit"
	editMethod   = "/" + ServiceName + "/Edit"
)

// Handler runs events and edits. *orchestrator.Orchestrator implements it.
type Handler interface {
	Handle(ctx context.Context, raw domain.RawEvent) *orchestrator.Result
	HandleEdit(ctx context.Context, e orchestrator.Edit) (*orchestrator.EditResult, error)
}

// intakeServer is the method set the service descriptor dispatches to.
type intakeServer interface {
	submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	edit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*intakeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler(submitMethod, intakeServer.submit)},
		{MethodName: "Edit", Handler: unaryHandler(editMethod, intakeServer.edit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bikeshare/intake/v1/intake.proto",
}

func unaryHandler(
	fullMethod string,
	call func(intakeServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(intakeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(intakeServer), ctx, req.(*structpb.Struct))
		})
	}
}

// Server serves the intake service.
type Server struct {
	handler Handler
	logger  *slog.Logger
	grpc    *grpc.Server
	health  *health.Server
}

// NewServer creates a Server dispatching to h. The standard health service
// is registered alongside the intake service.
func NewServer(h Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		handler: h,
		logger:  logger,
		grpc:    grpc.NewServer(),
		health:  health.NewServer(),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// GRPC exposes the underlying server, mainly for tests.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Listen opens a Unix socket at path, removing a stale socket first.
// The socket is readable and writable by the owner only.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		lis.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return lis, nil
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("intake serving", "addr", lis.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		} else {
			errChan <- nil
		}
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errChan
		s.logger.Info("intake stopped")
		return nil
	case err := <-errChan:
		return err
	}
}

func (s *Server) submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := DecodeEvent(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res := s.handler.Handle(ctx, raw)
	s.logger.Debug("intake submit",
		"run_id", res.RunID,
		"operation", raw.Operation,
		"phase", res.Phase,
		"code", res.Code(),
	)
	out, err := encodeResult(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) edit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	e, err := DecodeEdit(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.handler.HandleEdit(ctx, e)
	if err != nil {
		s.logger.Warn("intake edit failed", "table", e.Table, "row", e.Row, "column", e.Column, "error", err)
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	out, err := structpb.NewStruct(map[string]any{fieldAction: string(res.Action)})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
