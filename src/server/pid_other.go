//go:build !unix && !windows

package server

// processImage cannot inspect processes here; every recorded PID is stale
func processImage(pid int) (string, bool) {
	return "", false
}
