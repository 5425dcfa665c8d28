//go:build windows

package sqlite

import "golang.org/x/sys/windows"

// freeBytes reports the space left to the calling user on the volume
// holding dir, or 0 when it cannot be determined.
func freeBytes(dir string) int64 {
	if dir == "" {
		return 0
	}
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0
	}
	return int64(free)
}
