// Package middleware provides gRPC stream interceptors for the dsfd control
// service.
package middleware

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"dsf/internal/grpc/control"
	"dsf/internal/logger"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type requestContextKey string

const (
	// RequestIDKey is the context key for connection request IDs.
	RequestIDKey requestContextKey = "request_id"

	// RequestIDHeader is the metadata key for request IDs.
	RequestIDHeader = "x-request-id"
)

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDStreamInterceptor adds or propagates a request ID per stream.
func RequestIDStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		requestID := extractOrGenerateRequestID(ss.Context())
		ctx := WithRequestID(ss.Context(), requestID)

		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID))

		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func extractOrGenerateRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.NewString()
}

// LoggingStreamInterceptor logs each stream with timing information and
// attaches a stream-scoped logger to the context.
func LoggingStreamInterceptor(log *logger.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		l := log.With(
			"request_id", RequestIDFromContext(ss.Context()),
			"peer", peerAddress(ss.Context()),
		)
		ctx := logger.WithLogger(ss.Context(), l)

		l.Debug("stream opened", "method", info.FullMethod)
		err := handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})

		attrs := []any{
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		}
		if err != nil && status.Code(err) != codes.Canceled {
			l.Warn("stream closed", append(attrs, "error", err)...)
		} else {
			l.Debug("stream closed", attrs...)
		}
		return err
	}
}

func peerAddress(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// RecoveryStreamInterceptor catches panics and converts them to gRPC errors.
func RecoveryStreamInterceptor(log *logger.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				requestID := RequestIDFromContext(ss.Context())
				log.Error("panic in stream handler",
					"request_id", requestID,
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error (request_id: %s)", requestID)
			}
		}()
		return handler(srv, ss)
	}
}

// RateLimiter limits how often each client may open streams.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int

	lastCleanup time.Time
	cleanupAge  time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		rps:         requestsPerSecond,
		burst:       burst,
		lastCleanup: time.Now(),
		cleanupAge:  10 * time.Minute,
	}
}

// Reserve takes a token for key. When none is available it returns false
// and the delay after which one will be.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) > rl.cleanupAge {
		rl.cleanup()
	}

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
		rl.limiters[key] = limiter
	}

	r := limiter.Reserve()
	if !r.OK() {
		return false, time.Second
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d
	}
	return true, 0
}

func (rl *RateLimiter) cleanup() {
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
	rl.lastCleanup = time.Now()
}

// RateLimitStreamInterceptor refuses streams over the limit with a RetryInfo
// detail. Clients on a local socket share one key.
func RateLimitStreamInterceptor(limiter *RateLimiter) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if ok, delay := limiter.Reserve(peerAddress(ss.Context())); !ok {
			return control.RateLimited(delay)
		}
		return handler(srv, ss)
	}
}

// wrappedServerStream wraps a grpc.ServerStream to override the context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
