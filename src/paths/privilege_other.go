//go:build !unix && !windows

package paths

// IsPrivileged has no meaning on this platform
func IsPrivileged() bool {
	return false
}
