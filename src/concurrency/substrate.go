// Package concurrency selects how the server interleaves work. The choice is
// made once at startup from the invocation mode and injected into the
// components that need it, instead of swapping out I/O primitives globally.
package concurrency

import (
	"errors"
	"fmt"

	"github.com/stoq/stoqserver/src/mode"
)

// Kind is a scheduling model
type Kind int

const (
	// Blocking handles one unit of work at a time
	Blocking Kind = iota
	// Cooperative interleaves many in-flight units of work
	Cooperative
)

func (k Kind) String() string {
	switch k {
	case Cooperative:
		return "cooperative"
	default:
		return "blocking"
	}
}

// MarshalText lets Kind render by name in JSON and YAML
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Patch names recorded in Substrate.Patches, in application order
const (
	PatchRuntime        = "runtime"
	patchDatabasePrefix = "database:"
)

var (
	// ErrDriverUnavailable means the database driver to coordinate is not linked in
	ErrDriverUnavailable = errors.New("database driver unavailable")
	// ErrAlreadyPatched means Patch ran twice on the same substrate
	ErrAlreadyPatched = errors.New("concurrency substrate already patched")
)

// Substrate is the scheduling configuration of the process
type Substrate struct {
	Backend  Kind     `json:"backend" yaml:"backend"`
	Database Kind     `json:"database" yaml:"database"`
	Driver   string   `json:"driver,omitempty" yaml:"driver,omitempty"`
	Patches  []string `json:"patches" yaml:"patches"`
}

// DriverRegistry reports whether a database driver is available
type DriverRegistry interface {
	Registered(driver string) bool
}

// DriverFunc adapts a function to DriverRegistry
type DriverFunc func(driver string) bool

// Registered calls f
func (f DriverFunc) Registered(driver string) bool {
	return f(driver)
}

// Patched reports whether any patch was applied
func (s Substrate) Patched() bool {
	return len(s.Patches) > 0
}

// PoolSize returns the connection pool size for the database policy.
// A blocking database keeps a single connection so calls are serialized.
func (s Substrate) PoolSize(max int) int {
	if s.Database == Cooperative && max > 0 {
		return max
	}
	return 1
}

// Patch switches the substrate to cooperative scheduling for server mode.
// In multi-client mode the database driver is also switched, after
// checking it is available; the check happens first so a failure leaves
// the substrate untouched. Single-client server mode keeps a blocking
// database: there is only one logical caller.
func Patch(sub Substrate, rt mode.Runtime, driver string, drivers DriverRegistry) (Substrate, error) {
	if !rt.Server {
		return sub, nil
	}
	if sub.Patched() {
		return sub, ErrAlreadyPatched
	}

	if rt.MultiClient {
		if drivers == nil || !drivers.Registered(driver) {
			return sub, fmt.Errorf("%w: %q", ErrDriverUnavailable, driver)
		}
	}

	next := sub
	next.Patches = append([]string(nil), sub.Patches...)

	next.Backend = Cooperative
	next.Patches = append(next.Patches, PatchRuntime)

	if rt.MultiClient {
		next.Database = Cooperative
		next.Driver = driver
		next.Patches = append(next.Patches, patchDatabasePrefix+driver)
	}
	return next, nil
}
