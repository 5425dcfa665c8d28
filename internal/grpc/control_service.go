package grpc

import (
	"context"
	"errors"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"dsf/internal/config"
	"dsf/internal/grpc/control"
	"dsf/internal/grpc/middleware"
	"dsf/internal/logger"
	"dsf/internal/rpc"

	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Handler answers control-plane requests. The returned response carries
// either the request's success kind or an rpc.Error.
type Handler interface {
	Handle(ctx context.Context, req rpc.Request) rpc.Response
}

// StreamHandler answers requests whose responses keep flowing until ctx is
// done.
type StreamHandler interface {
	Stream(ctx context.Context, req rpc.Request, send func(rpc.Response) error) error
}

// ControlServiceConfig holds the dependencies of a ControlService.
type ControlServiceConfig struct {
	Handler   Handler
	Logger    *logger.Logger
	Audit     *logger.AuditLogger
	Metrics   *requestMetrics
	RateLimit config.RateLimitConfig
}

// ControlService implements the Exec stream. Requests on one stream are
// handled concurrently and answered in completion order; callers correlate
// by req_id.
type ControlService struct {
	control.UnimplementedControlServer

	handler Handler
	log     *logger.Logger
	audit   *logger.AuditLogger
	metrics *requestMetrics
	limit   config.RateLimitConfig
}

// NewControlService creates the control service.
func NewControlService(cfg ControlServiceConfig) *ControlService {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &ControlService{
		handler: cfg.Handler,
		log:     log,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		limit:   cfg.RateLimit,
	}
}

// Exec serves one client connection until it closes its send side or
// cancels the stream. Stream requests run until the client cancels.
func (s *ControlService) Exec(stream control.Control_ExecServer) error {
	ctx, cancel := context.WithCancel(stream.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	log := s.log.With("request_id", middleware.RequestIDFromContext(ctx))

	var sendMu sync.Mutex
	send := func(resp rpc.Response) error {
		frame, err := control.Frame(resp)
		if err != nil {
			return err
		}
		sendMu.Lock()
		defer sendMu.Unlock()
		return stream.Send(frame)
	}

	var limiter *rate.Limiter
	if s.limit.Enabled && s.limit.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.limit.RequestsPerSecond), s.limit.Burst)
	}

	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			wg.Wait()
			return nil
		}
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		var req rpc.Request
		if err := control.Unframe(frame, &req); err != nil {
			s.reject(log, req.ReqID, err, send)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatch(ctx, log, req, send)
		}()
	}
}

// reject answers a frame that did not decode. An unknown kind is answered
// with Unrecognised, anything else with a malformed error.
func (s *ControlService) reject(log *logger.Logger, reqID uint64, err error, send func(rpc.Response) error) {
	var unknown *rpc.UnknownKindError
	var kind rpc.ResponseKind
	label := "invalid"
	if errors.As(err, &unknown) {
		kind = rpc.Unrecognised{Request: unknown.Name}
		label = "unrecognised"
	} else {
		kind = rpc.NewError(err)
	}

	log.Warn("rejected request", logger.ReqIDAttr(reqID), logger.WithError(err))
	s.metrics.observe(label, "rejected", 0)
	if serr := send(rpc.NewResponse(reqID, kind)); serr != nil {
		log.Debug("send rejection", logger.ReqIDAttr(reqID), "error", serr)
	}
}

func (s *ControlService) dispatch(ctx context.Context, log *logger.Logger, req rpc.Request, send func(rpc.Response) error) {
	start := time.Now()
	kind := req.Kind.Kind()
	ctx = logger.WithReqID(ctx, req.ReqID)
	ctx = logger.WithLogger(ctx, log)

	s.metrics.begin()
	defer s.metrics.end()

	var err error
	if _, ok := req.Kind.(rpc.Stream); ok {
		err = s.stream(ctx, req, send)
	} else {
		resp := s.handle(ctx, log, req)
		err = resp.Err()
		if serr := send(resp); serr != nil {
			log.Debug("send response", "kind", kind, logger.ReqIDAttr(req.ReqID), "error", serr)
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.observe(kind, outcome, time.Since(start))
	log.Debug("handled request",
		"kind", kind,
		logger.ReqIDAttr(req.ReqID),
		"outcome", outcome,
		"duration", time.Since(start),
	)
	if rpc.Mutating(req.Kind) {
		s.audit.LogRequest(ctx, kind, req.ReqID, rpc.Target(req.Kind), start, err)
	}
}

func (s *ControlService) handle(ctx context.Context, log *logger.Logger, req rpc.Request) (resp rpc.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic handling request",
				"kind", req.Kind.Kind(),
				logger.ReqIDAttr(req.ReqID),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = rpc.NewResponse(req.ReqID, rpc.Error{Code: rpc.CodeInternal, Message: "internal error"})
		}
	}()

	resp = s.handler.Handle(ctx, req)
	resp.ReqID = req.ReqID
	if resp.Kind == nil {
		resp.Kind = rpc.Error{Code: rpc.CodeInternal, Message: "empty response"}
	}
	return resp
}

func (s *ControlService) stream(ctx context.Context, req rpc.Request, send func(rpc.Response) error) error {
	sh, ok := s.handler.(StreamHandler)
	if !ok {
		_ = send(rpc.NewResponse(req.ReqID, rpc.Unrecognised{Request: req.Kind.Kind()}))
		return rpc.ErrUnknownKind
	}

	err := sh.Stream(ctx, req, func(resp rpc.Response) error {
		resp.ReqID = req.ReqID
		return send(resp)
	})
	if err != nil && ctx.Err() == nil {
		_ = send(rpc.NewResponse(req.ReqID, rpc.NewError(err)))
		return err
	}
	return nil
}
