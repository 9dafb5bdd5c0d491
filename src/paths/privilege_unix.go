//go:build unix

package paths

import "golang.org/x/sys/unix"

// IsPrivileged returns true if running as root
func IsPrivileged() bool {
	return unix.Geteuid() == 0
}
