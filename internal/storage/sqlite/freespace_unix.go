//go:build !windows

package sqlite

import "golang.org/x/sys/unix"

// freeBytes reports the space left to an unprivileged writer on the volume
// holding dir, or 0 when it cannot be determined.
func freeBytes(dir string) int64 {
	if dir == "" {
		return 0
	}
	var fs unix.Statfs_t
	if err := unix.Statfs(dir, &fs); err != nil {
		return 0
	}
	return int64(fs.Bavail) * int64(fs.Bsize)
}
