package server

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/PavelAgarkov/warlock/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

type Configs struct {
	Port       string `mapstructure:"port"`
	Network    string `mapstructure:"network"`
	Reflection bool   `mapstructure:"reflection"`
}

type GRPCServer struct {
	configs Configs
	server  *grpc.Server
}

func newGRPCServer(configs Configs) *GRPCServer {
	if configs.Network == "" {
		configs.Network = "tcp"
	}
	return &GRPCServer{
		configs: configs,
	}
}

func (s *GRPCServer) Start(ctx context.Context, registerServices func(*grpc.Server), serverOptions ...grpc.ServerOption) (func(), error) {
	s.server = grpc.NewServer(serverOptions...)
	registerServices(s.server)
	if s.configs.Reflection {
		reflection.Register(s.server)
	}

	listener, err := net.Listen(s.configs.Network, s.configs.Port)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", s.configs.Network, s.configs.Port, err)
	}

	utils.GoRecover(ctx, func(ctx context.Context) {
		logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
			Msg:       fmt.Sprintf("gRPC server is started on %s", s.configs.Port),
			Args:      s.configs,
			Component: "GRPCServer",
			Method:    "Start",
		})
		if err := s.server.Serve(listener); err != nil {
			panic(fmt.Sprintf("Server gRPC stopped by error: %v", err))
		}
	})

	return s.shutdown, nil
}

func (s *GRPCServer) shutdown() {
	logCtx := context.Background()
	logger.WriteInfoLog(logCtx, &logger_wrapper.LogEntry{
		Msg:       "Shutting down gRPC server",
		Component: "GRPCServer",
		Method:    "shutdown",
	})

	timeoutCtx, cancel := context.WithTimeout(logCtx, 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		logger.WriteInfoLog(logCtx, &logger_wrapper.LogEntry{
			Msg:       "gRPC server has gracefully stopped.",
			Component: "GRPCServer",
			Method:    "shutdown",
		})
	case <-timeoutCtx.Done():
		logger.WriteWarnLog(logCtx, &logger_wrapper.LogEntry{
			Msg:       "Graceful shutdown timed out, forcing stop.",
			Component: "GRPCServer",
			Method:    "shutdown",
		})
		s.server.Stop()
	}
}

func CreateGRPCServer(ctx context.Context, registerServices func(*grpc.Server), configs Configs, serverOptions ...grpc.ServerOption) (func(), error) {
	return newGRPCServer(configs).Start(ctx, registerServices, serverOptions...)
}

type HealthSource interface {
	IsReady() bool
	OnChange(fn func(ready bool))
}

// RegisterHealth регистрирует grpc.health.v1, статус которого повторяет готовность стора.
func RegisterHealth(s *grpc.Server, src HealthSource) *health.Server {
	hs := health.NewServer()
	setStatus := func(ready bool) {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if ready {
			st = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus("", st)
	}
	setStatus(src.IsReady())
	src.OnChange(setStatus)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func PanicHandler(ctx context.Context, p interface{}) error {
	fullMethod := "unknown"
	if ts := grpc.ServerTransportStreamFromContext(ctx); ts != nil {
		fullMethod = ts.Method()
	}

	logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "panic in gRPC handler",
		Component: "GRPCServer",
		Method:    fullMethod,
		Error:     fmt.Errorf("%v", p),
		Args:      string(debug.Stack()),
	})

	return status.Errorf(codes.Internal, "internal server error (%s)", fullMethod)
}

func RecoveryUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				resp, err = nil, PanicHandler(ctx, p)
			}
		}()
		return handler(ctx, req)
	}
}

func TimeoutUnaryInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		c, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(c, req)
	}
}
