// Package api provides the gRPC calendar service and the server that hosts it
// next to the HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

// Server hosts the HTTP handler and the gRPC calendar service.
type Server struct {
	httpServer *http.Server
	grpcServer *grpc.Server
	httpAddr   string
	grpcAddr   string
	log        *slog.Logger
}

// NewServer creates a Server serving handler on httpAddr and svc on grpcAddr.
func NewServer(httpAddr, grpcAddr string, handler http.Handler, svc CalendarServer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	RegisterCalendarServer(gs, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpcServer: gs,
		httpAddr:   httpAddr,
		grpcAddr:   grpcAddr,
		log:        log,
	}
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs. Both servers are shut down
// before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		httpLis.Close()
		return err
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve is ListenAndServe on existing listeners.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("gRPC server listening", "addr", grpcLis.Addr().String())
		return s.grpcServer.Serve(grpcLis)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	err := s.httpServer.Shutdown(ctx)

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	return err
}

// loggingInterceptor logs every unary call at debug level and failures at
// warn level.
func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("grpc call failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		} else {
			log.Debug("grpc call", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}
