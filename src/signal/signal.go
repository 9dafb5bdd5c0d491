// Package signal maps user-originated interrupts to context cancellation.
// Signal sets are platform-dependent and live in build-tagged files.
package signal

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"sync"
)

// ErrInterrupted is the cancellation cause recorded when the user
// interrupts the process. Entry points may also return it (wrapped) to
// report an interrupted shutdown.
var ErrInterrupted = errors.New("interrupted")

var (
	shuttingDown bool
	shutdownMu   sync.RWMutex
)

// IsShuttingDown returns true once an interrupt has been received
func IsShuttingDown() bool {
	shutdownMu.RLock()
	defer shutdownMu.RUnlock()
	return shuttingDown
}

func setShuttingDown(v bool) {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	shuttingDown = v
}

// NotifyInterrupt returns a context that is cancelled with cause
// ErrInterrupted when an interrupt signal arrives. The returned stop
// function unregisters the handler and releases the context.
func NotifyInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	ch := make(chan os.Signal, 1)
	ossignal.Notify(ch, interruptSignals...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			setShuttingDown(true)
			cancel(fmt.Errorf("%w by %v", ErrInterrupted, sig))
		case <-ctx.Done():
		case <-done:
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			ossignal.Stop(ch)
			close(done)
			cancel(context.Canceled)
		})
	}
	return ctx, stop
}

// Interrupted reports whether err or the cancellation cause of ctx is an
// interrupt.
func Interrupted(ctx context.Context, err error) bool {
	if errors.Is(err, ErrInterrupted) {
		return true
	}
	return ctx != nil && errors.Is(context.Cause(ctx), ErrInterrupted)
}
