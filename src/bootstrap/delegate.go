package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/stoq/stoqserver/src/signal"
)

// ExitInterrupted is the exit code of a run stopped by the user
const ExitInterrupted = 130

// EntryPoint is the application main routine. It receives the invocation
// arguments without the program name and returns the process exit code.
type EntryPoint func(ctx context.Context, bc Context, args []string) (int, error)

var notifyInterrupt = signal.NotifyInterrupt

// Delegate calls entry exactly once with the resolved context. A user
// interrupt maps to ExitInterrupted and prints "Interrupted" on stderr;
// any other error is returned unchanged.
func Delegate(ctx context.Context, bc Context, entry EntryPoint, stderr io.Writer) (int, error) {
	ctx, stop := notifyInterrupt(ctx)
	defer stop()

	bc.Workers.Env = bc.Env
	bc.Workers.SearchPath = bc.SearchPath

	code, err := entry(ctx, bc, bc.EntryArgs())
	if signal.Interrupted(ctx, err) {
		fmt.Fprintln(stderr, "Interrupted")
		return ExitInterrupted, nil
	}
	return code, err
}
