//go:build windows

package grpc

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// listenLocal creates a Windows named pipe listener.
func listenLocal(pipeName string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		// default security: current user and Administrators
		SecurityDescriptor: "",
		MessageMode:        false,
		InputBufferSize:    65536,
		OutputBufferSize:   65536,
	}
	return winio.ListenPipe(pipeName, cfg)
}

// removeSocketFile is a no-op on Windows since named pipes don't leave files.
func removeSocketFile(_ string) error {
	return nil
}
