//go:build !linux && !darwin

package jac

// readPeakRSS has no portable implementation outside Linux/Darwin; callers
// on other platforms get a zero PeakRSSBytes rather than a wrong number.
func readPeakRSS() uint64 { return 0 }
