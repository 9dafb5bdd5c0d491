package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stoq/stoqserver/src/common/version"
	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/environ"
	"github.com/stoq/stoqserver/src/logging"
	"github.com/stoq/stoqserver/src/mode"
	"github.com/stoq/stoqserver/src/paths"
)

// ErrNoEntryPoint is returned by Run when Entry is nil
var ErrNoEntryPoint = errors.New("bootstrap: no entry point")

// Sequencer runs the bootstrap phases in order and delegates to Entry
type Sequencer struct {
	Config  *config.Config
	Drivers concurrency.DriverRegistry
	Entry   EntryPoint
	Logger  *slog.Logger
	Stderr  io.Writer
	// Paths is the OS layout used when the config leaves a directory unset
	Paths *paths.Paths
}

// Run executes mode detection, the concurrency patch, the frozen
// environment, extension registration and delegation. An error in any
// phase aborts the run before the entry point is called; the returned code
// is then 1.
func (s *Sequencer) Run(ctx context.Context, args []string, env environ.Env) (int, error) {
	if s.Entry == nil {
		return 1, ErrNoEntryPoint
	}
	cfg := s.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load("", env); err != nil {
			return 1, err
		}
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	stderr := s.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	layout := s.Paths
	if layout == nil {
		layout = paths.Get(paths.IsPrivileged())
	}

	bc := NewContext(args, env, cfg)
	bc.Frozen = cfg.Frozen || version.IsFrozen()
	logger = logger.With("run_id", bc.RunID)

	start := time.Now()
	bc = DetectMode(bc)
	bc = bc.record(PhaseMode, start, false)
	logger.Debug("mode detected", "runtime", bc.Mode.String())

	start = time.Now()
	var err error
	if bc, err = ApplyConcurrency(bc, cfg.Database.Driver, s.Drivers); err != nil {
		logger.Error("bootstrap failed", "phase", PhaseConcurrency, "error", err)
		return 1, err
	}
	bc = bc.record(PhaseConcurrency, start, !bc.Mode.Server)
	logger.Debug("concurrency substrate",
		"backend", bc.Substrate.Backend.String(),
		"database", bc.Substrate.Database.String(),
		"patches", bc.Substrate.Patches)

	start = time.Now()
	if bc, err = BuildFrozenEnvironment(bc, cfg.Extensions.Suffixes); err != nil {
		logger.Error("bootstrap failed", "phase", PhaseFrozen, "error", err)
		return 1, err
	}
	bc = bc.record(PhaseFrozen, start, !bc.Frozen)
	if bc.Frozen {
		logger.Debug("frozen environment",
			"data_dir", bc.DataDir,
			"executable_dir", bc.ExecutableDir,
			"bundles", len(bc.Bundles))
	}

	start = time.Now()
	bc.ResourceDir = cfg.Paths.Resources
	switch {
	case bc.ResourceDir != "":
	case bc.Frozen && bc.DataDir != "":
		// Frozen installs keep extensions next to the credentials file
		bc.ResourceDir = filepath.Join(bc.DataDir, paths.ExtensionsDir)
	default:
		bc.ResourceDir = layout.ExtensionsPath()
	}
	bc.CacheDir = cfg.Paths.Cache
	if bc.CacheDir == "" {
		bc.CacheDir = layout.CacheDir
	}
	bc = RegisterExtensions(bc, cfg.Extensions.Names)
	bc = bc.record(PhaseExtensions, start, false)
	logger.Debug("extensions registered", "dir", bc.ResourceDir, "count", len(bc.Extensions))

	logger.Info("starting",
		"version", version.Version,
		"mode", mode.String(),
		"runtime", bc.Mode.String(),
		"frozen", bc.Frozen,
		"search_path", bc.SearchPath.Len())

	start = time.Now()
	code, err := Delegate(ctx, bc, s.Entry, stderr)
	if err != nil {
		logger.Error("entry point failed", "error", err, "duration", time.Since(start))
		return code, err
	}
	logger.Debug("entry point returned", "code", code, "duration", time.Since(start))
	return code, nil
}
