//go:build !windows

package signal

import (
	"os"
	"syscall"
)

// interruptSignals are the user-originated interrupts (Ctrl+C).
// SIGTERM is left to the default handler: it is a supervisor stop, not
// an interactive interrupt.
var interruptSignals = []os.Signal{syscall.SIGINT}
