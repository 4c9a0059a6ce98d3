//go:build !unix && !windows

package install

// processAlive cannot check other platforms, so only StaleLockAge applies.
func processAlive(int) bool { return true }
