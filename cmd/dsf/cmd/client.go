package cmd

import (
	"context"
	"sync"

	clierrors "dsf/internal/cli/errors"
	"dsf/internal/cli/output"
	"dsf/internal/grpc/client"
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

var (
	// daemonClient is the shared client for daemon communication.
	daemonClient *client.Client
	clientOnce   sync.Once
	clientErr    error
)

// GetClient returns the shared daemon client, connecting on first use.
func GetClient(ctx context.Context) (*client.Client, error) {
	clientOnce.Do(func() {
		daemonClient, clientErr = initClient(ctx)
	})
	return daemonClient, clientErr
}

func initClient(ctx context.Context) (*client.Client, error) {
	opts := client.DefaultOptions()
	if cfg != nil {
		opts = client.FromConfig(cfg.Connection)
	}
	opts = opts.WithLogger(log)

	c, err := client.New(opts)
	if err != nil {
		return nil, clierrors.ConnectionFailed(opts.Address, err)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, clierrors.ConnectionFailed(opts.Address, err)
	}
	return c, nil
}

// CloseClient closes the shared client connection.
func CloseClient() error {
	if daemonClient != nil {
		return daemonClient.Close()
	}
	return nil
}

// call sends kind to the daemon and returns the typed reply.
func call[T rpc.ResponseKind](cmd *cobra.Command, kind rpc.RequestKind) (T, error) {
	var zero T
	c, err := GetClient(cmd.Context())
	if err != nil {
		return zero, err
	}
	return rpc.Call[T](cmd.Context(), c, kind)
}

// show sends kind and prints the reply in the configured format.
func show[T rpc.ResponseKind](cmd *cobra.Command, kind rpc.RequestKind) error {
	resp, err := call[T](cmd, kind)
	if err != nil {
		return err
	}
	return newWriter(cmd).Write(output.FromResponse(resp))
}

// done sends a request answered by None and prints message on success.
func done(cmd *cobra.Command, kind rpc.RequestKind, message string) error {
	if _, err := call[rpc.NoneResponse](cmd, kind); err != nil {
		return err
	}
	newWriter(cmd).Success(message)
	return nil
}
