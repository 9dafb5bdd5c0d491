//go:build unix

package server

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// processImage returns the executable of pid and whether the process exists.
// The image is empty when it cannot be read.
func processImage(pid int) (string, bool) {
	// Signal 0 probes existence; EPERM means it exists under another user.
	if err := unix.Kill(pid, 0); err != nil && err != unix.EPERM {
		return "", false
	}

	if exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		return exe, true
	}
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "comm=").Output()
	if err != nil {
		return "", true
	}
	return strings.TrimSpace(string(out)), true
}
