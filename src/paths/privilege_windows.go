//go:build windows

package paths

import "golang.org/x/sys/windows"

// IsPrivileged returns true if the process token is elevated
func IsPrivileged() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
