//go:build linux

package jac

import "syscall"

// readPeakRSS samples getrusage(RUSAGE_SELF) once; Ru_maxrss is reported in
// kilobytes on Linux.
func readPeakRSS() uint64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}

	return uint64(ru.Maxrss) * 1024
}
