//go:build windows

package signal

import "os"

// Windows only delivers os.Interrupt (Ctrl+C, Ctrl+Break)
var interruptSignals = []os.Signal{os.Interrupt}
