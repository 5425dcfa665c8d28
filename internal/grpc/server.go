package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"dsf/internal/config"
	"dsf/internal/grpc/control"
	"dsf/internal/grpc/middleware"
	"dsf/internal/logger"
	"dsf/internal/rpc"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
)

// maxFrameSize bounds one envelope on the wire.
const maxFrameSize = 16 * rpc.MaxBodySize

// Server owns the control-plane listeners and the metrics endpoint.
type Server struct {
	cfg        config.RPCConfig
	metricsCfg config.MetricsConfig
	log        *logger.Logger

	grpcServer *grpc.Server
	control    *ControlService

	tcpListener  net.Listener
	pipeListener net.Listener // unix socket, or named pipe on Windows

	metricsServer *http.Server
	registry      *prometheus.Registry
	grpcMetrics   *grpc_prometheus.ServerMetrics

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// ServerConfig holds all dependencies needed to create a Server.
type ServerConfig struct {
	RPC     config.RPCConfig
	Metrics config.MetricsConfig

	// Handler answers decoded requests. It may also implement StreamHandler.
	Handler Handler

	Logger *logger.Logger
	Audit  *logger.AuditLogger

	// Registry receives transport and request metrics. If nil, the server
	// creates its own with the Go and process collectors.
	Registry *prometheus.Registry
}

// NewServer creates the gRPC server with its interceptor chain.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("control handler is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.Component("rpc")

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	s := &Server{
		cfg:         cfg.RPC,
		metricsCfg:  cfg.Metrics,
		log:         log,
		registry:    reg,
		grpcMetrics: grpc_prometheus.NewServerMetrics(),
	}
	s.grpcMetrics.EnableHandlingTimeHistogram()
	reg.MustRegister(s.grpcMetrics)

	s.control = NewControlService(ControlServiceConfig{
		Handler:   cfg.Handler,
		Logger:    log,
		Audit:     cfg.Audit,
		Metrics:   newRequestMetrics(reg),
		RateLimit: cfg.RPC.RateLimit,
	})

	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxFrameSize),
		grpc.MaxSendMsgSize(maxFrameSize),
		grpc.ChainStreamInterceptor(s.buildStreamInterceptors()...),
	)
	control.RegisterControlServer(s.grpcServer, s.control)
	s.grpcMetrics.InitializeMetrics(s.grpcServer)

	return s, nil
}

// buildStreamInterceptors creates the chain of stream interceptors.
func (s *Server) buildStreamInterceptors() []grpc.StreamServerInterceptor {
	interceptors := []grpc.StreamServerInterceptor{
		// metrics first, to capture everything
		s.grpcMetrics.StreamServerInterceptor(),
		middleware.RecoveryStreamInterceptor(s.log),
		middleware.RequestIDStreamInterceptor(),
		middleware.LoggingStreamInterceptor(s.log),
	}
	if s.cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst)
		interceptors = append(interceptors, middleware.RateLimitStreamInterceptor(limiter))
	}
	return interceptors
}

// Start begins listening on all configured endpoints.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Socket == "" && s.cfg.TCPAddress == "" {
		return fmt.Errorf("no control-plane listener configured")
	}

	if s.cfg.Socket != "" {
		lis, err := listenLocal(s.cfg.Socket)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.Socket, err)
		}
		s.pipeListener = lis
		if err := s.Serve(lis); err != nil {
			return err
		}
		s.log.Info("control plane listening", "socket", s.cfg.Socket)
	}

	if s.cfg.TCPAddress != "" {
		var lc net.ListenConfig
		lis, err := lc.Listen(ctx, "tcp", s.cfg.TCPAddress)
		if err != nil {
			s.stopPipeListener()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.TCPAddress, err)
		}
		s.tcpListener = lis
		if err := s.Serve(lis); err != nil {
			return err
		}
		s.log.Info("control plane listening", "address", lis.Addr().String())
	}

	if s.metricsCfg.Enabled && s.metricsCfg.Address != "" {
		s.startMetricsServer()
	}
	return nil
}

// Serve accepts connections on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("control plane server error", "listener", lis.Addr().String(), "error", err)
		}
	}()
	return nil
}

func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	s.metricsServer = &http.Server{
		Addr:              s.metricsCfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server error", "error", err)
		}
	}()
	s.log.Info("prometheus metrics available", "url", "http://"+s.metricsCfg.Address+"/metrics")
}

// Stop drains open streams until ctx expires, then forces them closed.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	var errs []error

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
		errs = append(errs, fmt.Errorf("graceful shutdown timed out, forced stop"))
	}

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	s.stopPipeListener()
	s.stopTCPListener()
	s.wg.Wait()

	return errors.Join(errs...)
}

func (s *Server) stopTCPListener() {
	if s.tcpListener != nil {
		_ = s.tcpListener.Close()
		s.tcpListener = nil
	}
}

func (s *Server) stopPipeListener() {
	if s.pipeListener != nil {
		_ = s.pipeListener.Close()
		s.pipeListener = nil
	}
	if s.cfg.Socket != "" {
		_ = removeSocketFile(s.cfg.Socket)
	}
}

// Registry returns the metrics registry shared with the daemon.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Address returns the TCP listener address.
func (s *Server) Address() string {
	if s.tcpListener != nil {
		return s.tcpListener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
