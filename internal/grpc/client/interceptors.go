package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const requestIDHeader = "x-request-id"

// buildStreamInterceptors builds the chain of stream interceptors.
func (c *Client) buildStreamInterceptors() []grpc.StreamClientInterceptor {
	var interceptors []grpc.StreamClientInterceptor
	if c.opts.RequestIDEnabled {
		interceptors = append(interceptors, requestIDStreamInterceptor())
	}
	interceptors = append(interceptors, c.loggingStreamInterceptor())
	return interceptors
}

// requestIDStreamInterceptor adds a request ID to streaming calls.
func requestIDStreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(ensureRequestID(ctx), desc, cc, method, opts...)
	}
}

// ensureRequestID ensures the context has a request ID in metadata.
func ensureRequestID(ctx context.Context) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	}
	if len(md.Get(requestIDHeader)) == 0 {
		md = md.Copy()
		md.Set(requestIDHeader, uuid.NewString())
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// loggingStreamInterceptor logs stream setup at debug level.
func (c *Client) loggingStreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := time.Now()
		stream, err := streamer(ctx, desc, cc, method, opts...)
		c.log.Debug("stream opened",
			"method", method,
			"target", cc.Target(),
			"duration", time.Since(start),
			"error", err,
		)
		return stream, err
	}
}

// WithRequestID returns a context with the specified request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}
	md.Set(requestIDHeader, requestID)
	return metadata.NewOutgoingContext(ctx, md)
}
