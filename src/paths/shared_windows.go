//go:build windows

package paths

// SharedDataVar names the variable holding the all-users data directory
const SharedDataVar = "ALLUSERSPROFILE"
