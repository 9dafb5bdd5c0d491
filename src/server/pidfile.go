package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// processName is matched against the executable of a recorded PID
const processName = "stoqserver"

// CheckPIDFile reports whether the PID recorded in path belongs to a live
// stoqserver. Corrupt files and files naming a dead or unrelated process
// are removed.
func CheckPIDFile(path string) (bool, int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		os.Remove(path)
		return false, 0, nil
	}

	image, alive := processImage(pid)
	if !alive || !strings.Contains(strings.ToLower(filepath.Base(image)), processName) {
		os.Remove(path)
		return false, 0, nil
	}
	return true, pid, nil
}

// WritePIDFile records the current process in path. It fails when another
// live stoqserver already holds the file.
func WritePIDFile(path string) error {
	running, pid, err := CheckPIDFile(path)
	if err != nil {
		return err
	}
	if running && pid != os.Getpid() {
		return fmt.Errorf("server already running (PID: %d)", pid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// RemovePIDFile removes path if it still names the current process
func RemovePIDFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == os.Getpid() {
		os.Remove(path)
	}
}
