package signal

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsShuttingDown(t *testing.T) {
	orig := shuttingDown
	defer func() { shuttingDown = orig }()

	setShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() should return false initially")
	}

	setShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() should return true after setting")
	}
}

func TestInterrupted(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() context.Context
		err  error
		want bool
	}{
		{"nil everything", func() context.Context { return nil }, nil, false},
		{"plain error", context.Background, errors.New("boom"), false},
		{"sentinel", context.Background, ErrInterrupted, true},
		{"wrapped sentinel", context.Background, fmt.Errorf("serve: %w", ErrInterrupted), true},
		{"cancelled with cause", func() context.Context {
			ctx, cancel := context.WithCancelCause(context.Background())
			cancel(ErrInterrupted)
			return ctx
		}, context.Canceled, true},
		{"cancelled without cause", func() context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		}, context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Interrupted(tt.ctx(), tt.err); got != tt.want {
				t.Errorf("Interrupted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotifyInterruptStop(t *testing.T) {
	ctx, stop := NotifyInterrupt(context.Background())
	stop()
	stop() // second call is a no-op

	<-ctx.Done()
	if Interrupted(ctx, nil) {
		t.Error("stop() should not look like an interrupt")
	}
	if !errors.Is(context.Cause(ctx), context.Canceled) {
		t.Errorf("Cause = %v, want context.Canceled", context.Cause(ctx))
	}
}

func TestNotifyInterruptParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := NotifyInterrupt(parent)
	defer stop()

	cancel()
	<-ctx.Done()
	if Interrupted(ctx, nil) {
		t.Error("parent cancellation should not look like an interrupt")
	}
}
