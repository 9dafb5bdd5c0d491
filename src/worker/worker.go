// Package worker lets the server binary re-execute itself to run helper
// processes. A child is marked through its environment; Dispatch runs at the
// very top of main and hands the process to the named worker before any
// bootstrap phase runs again.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/stoq/stoqserver/src/environ"
	"github.com/stoq/stoqserver/src/plugin"
)

const (
	// MarkerEnv names the worker a child process should run
	MarkerEnv = "STOQSERVER_WORKER"
	// SearchPathEnv carries the parent's resolved search path to re-entered children
	SearchPathEnv = "STOQSERVER_SEARCH_PATH"
)

// ErrUnknownWorker is returned for a marker that names no registered worker
var ErrUnknownWorker = errors.New("unknown worker")

// Func is the body of a worker process. Its result is the process exit code.
type Func func(ctx context.Context, env environ.Env, args []string) int

var (
	mu       sync.RWMutex
	registry = make(map[string]Func)
)

// Register makes a worker available under name. It panics if name is empty
// or already registered.
func Register(name string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	if name == "" || fn == nil {
		panic("worker: Register with empty name or nil func")
	}
	if _, dup := registry[name]; dup {
		panic("worker: Register called twice for " + name)
	}
	registry[name] = fn
}

// Lookup returns the worker registered under name
func Lookup(name string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered worker names, sorted
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the worker named by MarkerEnv, if any. ran is false when
// the process is not a worker child and startup should continue normally.
func Dispatch(ctx context.Context, env environ.Env, args []string) (ran bool, code int, err error) {
	name, ok := env.Lookup(MarkerEnv)
	if !ok || name == "" {
		return false, 0, nil
	}
	fn, ok := Lookup(name)
	if !ok {
		return true, 2, fmt.Errorf("%w: %q", ErrUnknownWorker, name)
	}
	return true, fn(ctx, env.Without(MarkerEnv), args), nil
}

// Launcher starts worker children of the running binary
type Launcher struct {
	// Executable is the binary to re-execute; empty means os.Executable
	Executable string
	Env        environ.Env
	SearchPath plugin.SearchPath
	// Reentry passes SearchPath to children so they skip the bundle scan.
	// It is enabled for frozen runs.
	Reentry bool
}

// Command returns a command that runs worker name with args in a child process
func (l Launcher) Command(ctx context.Context, name string, args ...string) (*exec.Cmd, error) {
	if _, ok := Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorker, name)
	}

	exe := l.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
	}

	env := l.Env.With(MarkerEnv, name)
	if l.Reentry {
		env = env.With(SearchPathEnv, l.SearchPath.String())
	} else {
		env = env.Without(SearchPathEnv)
	}

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Env = env.Environ()
	return cmd, nil
}

// SearchPathFromEnv returns the search path handed down by a re-entering parent
func SearchPathFromEnv(env environ.Env) (plugin.SearchPath, bool) {
	v, ok := env.Lookup(SearchPathEnv)
	if !ok {
		return plugin.SearchPath{}, false
	}
	return plugin.ParseSearchPath(v), true
}
