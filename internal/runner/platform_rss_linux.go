//go:build linux

package runner

import "syscall"

// getMaxRSSBytes converts Linux's ru_maxrss, reported in kilobytes, to bytes.
func getMaxRSSBytes(rusage *syscall.Rusage) int64 {
	return rusage.Maxrss * 1024
}
