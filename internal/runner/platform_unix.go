//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// getProcessResourceUsage extracts resource usage on Unix systems, the
// numbers analyzer.toolchain and the cascade's wave verifier attach to
// a tool run's ExecutionResult for display and audit.
func getProcessResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}

	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return nil
	}

	return &ResourceUsage{
		UserTimeMs:                 rusage.Utime.Sec*1000 + int64(rusage.Utime.Usec/1000),
		SystemTimeMs:               rusage.Stime.Sec*1000 + int64(rusage.Stime.Usec/1000),
		MaxRSSBytes:                getMaxRSSBytes(rusage),
		VoluntaryContextSwitches:   int64(rusage.Nvcsw),
		InvoluntaryContextSwitches: int64(rusage.Nivcsw),
		DiskReadBytes:              int64(rusage.Inblock) * 512, // block size is typically 512 bytes
		DiskWriteBytes:             int64(rusage.Oublock) * 512,
	}
}
