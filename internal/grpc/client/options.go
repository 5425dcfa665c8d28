package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"dsf/internal/config"
	"dsf/internal/logger"
)

// Options configures the connection to dsfd.
type Options struct {
	// Address is a unix socket path, a named pipe (\\.\pipe\...) or host:port.
	Address string

	// DialTimeout bounds establishing the connection.
	DialTimeout time.Duration
	// Timeout bounds each request. Zero leaves it to the caller's context.
	Timeout time.Duration

	// Retries is how many times a retryable request is resent.
	Retries      int
	RetryBackoff time.Duration

	RequestIDEnabled bool

	Logger *logger.Logger

	// Dialer overrides how Address is reached. Used by tests.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Address:          config.DefaultSocketPath(),
		DialTimeout:      5 * time.Second,
		Timeout:          30 * time.Second,
		Retries:          1,
		RetryBackoff:     250 * time.Millisecond,
		RequestIDEnabled: true,
	}
}

// FromConfig builds options from the CLI connection settings.
func FromConfig(cfg config.ConnectionConfig) Options {
	o := DefaultOptions()
	if cfg.Address != "" {
		o.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		o.Timeout = cfg.Timeout
	}
	o.Retries = cfg.Retries
	return o
}

// WithAddress sets the daemon address.
func (o Options) WithAddress(addr string) Options {
	o.Address = addr
	return o
}

// WithTimeout sets the per-request timeout.
func (o Options) WithTimeout(timeout time.Duration) Options {
	o.Timeout = timeout
	return o
}

// WithRetry sets retry configuration.
func (o Options) WithRetry(attempts int, backoff time.Duration) Options {
	o.Retries = attempts
	o.RetryBackoff = backoff
	return o
}

// WithLogger sets the client logger.
func (o Options) WithLogger(l *logger.Logger) Options {
	o.Logger = l
	return o
}

// WithDialer overrides the transport dialer.
func (o Options) WithDialer(d func(ctx context.Context, addr string) (net.Conn, error)) Options {
	o.Dialer = d
	return o
}

// Validate checks that the options are valid.
func (o *Options) Validate() error {
	if o.Address == "" {
		return fmt.Errorf("daemon address must be specified")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive")
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if o.Retries < 0 {
		return fmt.Errorf("retries must be non-negative")
	}
	return nil
}
