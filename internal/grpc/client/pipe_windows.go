//go:build windows

package client

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

// dialNamedPipe connects to a Windows named pipe.
func dialNamedPipe(ctx context.Context, addr string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, addr)
}
