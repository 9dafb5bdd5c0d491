// Package bootstrap runs the ordered startup phases of the server before
// control reaches the application entry point.
//
// Phases never touch process globals. Each one receives a Context and
// returns an updated copy; the final Context is handed to the entry point,
// which uses its environment, search path, loader and worker launcher
// explicitly.
package bootstrap

import (
	"time"

	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/environ"
	"github.com/stoq/stoqserver/src/logging"
	"github.com/stoq/stoqserver/src/mode"
	"github.com/stoq/stoqserver/src/plugin"
	"github.com/stoq/stoqserver/src/worker"
)

// Phase names, in execution order
const (
	PhaseMode        = "mode"
	PhaseConcurrency = "concurrency"
	PhaseFrozen      = "frozen"
	PhaseExtensions  = "extensions"
	PhaseDelegate    = "delegate"
)

// Timing records how long a phase took
type Timing struct {
	Phase    string        `json:"phase" yaml:"phase"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Skipped  bool          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Context is the state threaded through the bootstrap phases
type Context struct {
	// Args is the full invocation, program name first
	Args   []string
	Config *config.Config

	Mode      mode.Runtime
	Substrate concurrency.Substrate

	Env        environ.Env
	SearchPath plugin.SearchPath
	Loader     *plugin.Loader
	Workers    worker.Launcher

	Frozen        bool
	ExecutableDir string
	DataDir       string
	ResourceDir   string
	CacheDir      string

	// Bundles are the archives found next to the executable
	Bundles []string
	// Extensions are the extension archives registered from ResourceDir
	Extensions []string

	RunID   string
	Timings []Timing
}

// NewContext returns the context the first phase starts from
func NewContext(args []string, env environ.Env, cfg *config.Config) Context {
	return Context{
		Args:    append([]string(nil), args...),
		Config:  cfg,
		Env:     env,
		Loader:  plugin.NewLoader(),
		Workers: worker.Launcher{Env: env},
		RunID:   logging.NewRunID(),
	}
}

// EntryArgs returns the arguments forwarded to the entry point
func (bc Context) EntryArgs() []string {
	if len(bc.Args) == 0 {
		return nil
	}
	return append([]string(nil), bc.Args[1:]...)
}

// Timing returns the recorded timing of phase
func (bc Context) Timing(phase string) (Timing, bool) {
	for _, t := range bc.Timings {
		if t.Phase == phase {
			return t, true
		}
	}
	return Timing{}, false
}

func (bc Context) record(phase string, start time.Time, skipped bool) Context {
	timings := make([]Timing, len(bc.Timings), len(bc.Timings)+1)
	copy(timings, bc.Timings)
	bc.Timings = append(timings, Timing{Phase: phase, Duration: time.Since(start), Skipped: skipped})
	return bc
}
