//go:build !windows

package paths

// SharedDataVar names the variable holding the shared data directory.
// Packaged builds for Unix set it from the service unit.
const SharedDataVar = "STOQSERVER_SHARED_DATA"
