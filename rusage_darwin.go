//go:build darwin

package jac

import "syscall"

// readPeakRSS samples getrusage(RUSAGE_SELF) once; Ru_maxrss is reported in
// bytes on Darwin (unlike Linux's kilobytes).
func readPeakRSS() uint64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}

	return uint64(ru.Maxrss)
}
