package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/mode"
	"github.com/stoq/stoqserver/src/paths"
	"github.com/stoq/stoqserver/src/plugin"
)

// Overridable for tests
var (
	patch      = concurrency.Patch
	executable = os.Executable
	goos       = runtime.GOOS
)

// DetectMode derives the runtime flags from the invocation arguments.
// The program name is not inspected.
func DetectMode(bc Context) Context {
	bc.Mode = mode.Detect(bc.EntryArgs())
	return bc
}

// ApplyConcurrency switches the substrate for server mode. Outside server
// mode it returns bc without consulting the patcher at all.
func ApplyConcurrency(bc Context, driver string, drivers concurrency.DriverRegistry) (Context, error) {
	if !bc.Mode.Server {
		return bc, nil
	}
	sub, err := patch(bc.Substrate, bc.Mode, driver, drivers)
	if err != nil {
		return bc, fmt.Errorf("concurrency: %w", err)
	}
	bc.Substrate = sub
	return bc, nil
}

// BuildFrozenEnvironment prepares a self-contained installation: worker
// re-entry, the shared data directory and credentials file, bundles next
// to the executable, PATH, and archive support in the loader. It does
// nothing unless bc.Frozen. Steps run in that order and the first failure
// stops the phase.
func BuildFrozenEnvironment(bc Context, suffixes []string) (Context, error) {
	if !bc.Frozen {
		return bc, nil
	}

	bc.Workers.Reentry = true

	dataDir, err := paths.SharedDataDir(bc.Env)
	if err != nil {
		return bc, err
	}
	bc.DataDir = dataDir
	bc.Env = bc.Env.With(paths.CredentialsEnv, paths.CredentialsPath(dataDir))

	exe, err := executable()
	if err != nil {
		return bc, fmt.Errorf("locate executable: %w", err)
	}
	bc.ExecutableDir = filepath.Dir(exe)

	bundles, err := plugin.ScanBundles(bc.ExecutableDir, suffixes)
	if err != nil {
		return bc, err
	}
	for _, b := range bundles {
		bc.SearchPath = bc.SearchPath.Prepend(b)
	}
	bc.Bundles = bundles

	bc.Env = bc.Env.PrependPath(pathVar(bc), bc.ExecutableDir)

	bc.Loader.InstallArchiveSupport()
	bc.Loader.Invalidate()
	return bc, nil
}

// pathVar returns the name of the executable search variable. Windows
// spells it in any case, usually "Path".
func pathVar(bc Context) string {
	if goos != "windows" {
		return "PATH"
	}
	for k := range bc.Env.Map() {
		if strings.EqualFold(k, "PATH") {
			return k
		}
	}
	return "Path"
}

// RegisterExtensions prepends every archive in names that exists in
// bc.ResourceDir, in the order given. Missing archives are skipped.
func RegisterExtensions(bc Context, names []string) Context {
	sp, added := plugin.RegisterExtensions(bc.SearchPath, bc.ResourceDir, names, nil)
	bc.SearchPath = sp
	bc.Extensions = append(append([]string(nil), bc.Extensions...), added...)
	return bc
}
