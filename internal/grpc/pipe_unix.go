//go:build !windows

package grpc

import (
	"net"
	"os"
	"path/filepath"
)

// listenLocal listens on a unix socket readable only by the daemon's user.
func listenLocal(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	// a previous daemon may have left its socket behind
	_ = removeSocketFile(path)

	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = lis.Close()
		return nil, err
	}
	return lis, nil
}

// removeSocketFile removes a unix socket file if it exists.
func removeSocketFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}
