// Package paths resolves the OS-specific directories of the server and the
// locations the frozen runtime derives from the shared system data variable.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/stoq/stoqserver/src/environ"
)

const (
	// ProjectOrg is the organization directory component
	ProjectOrg = "stoq"
	// ProjectName is the project directory component
	ProjectName = "stoqserver"

	// CredentialsEnv points database clients at the pgpass file
	CredentialsEnv = "PGPASSFILE"
	// CredentialsFile is the pgpass file name inside the shared data dir
	CredentialsFile = "pgpass.conf"
	// ExtensionsDir is the resource subdirectory holding extension archives
	ExtensionsDir = "extensions"
)

// ErrSharedDataUnset is returned when the shared system data variable is missing
var ErrSharedDataUnset = errors.New("shared data directory variable not set")

// Paths represents OS-specific paths for the application
type Paths struct {
	ConfigDir   string `yaml:"config_dir"`
	DataDir     string `yaml:"data_dir"`
	LogDir      string `yaml:"log_dir"`
	CacheDir    string `yaml:"cache_dir"`
	ResourceDir string `yaml:"resource_dir"`
	PIDFile     string `yaml:"pid_file"`
}

// goos is used for testing - allows overriding runtime.GOOS
var goos = runtime.GOOS

// Get returns OS-specific paths based on OS and privilege level
func Get(privileged bool) *Paths {
	var p *Paths
	switch goos {
	case "darwin":
		p = getDarwinPaths(ProjectOrg, ProjectName, privileged)
	case "freebsd", "openbsd", "netbsd":
		p = getBSDPaths(ProjectOrg, ProjectName, privileged)
	case "windows":
		p = getWindowsPaths(ProjectOrg, ProjectName, privileged)
	default:
		p = getLinuxPaths(ProjectOrg, ProjectName, privileged)
	}
	p.ResourceDir = filepath.Join(p.DataDir, "data")
	return p
}

func getLinuxPaths(org, name string, privileged bool) *Paths {
	if privileged {
		return &Paths{
			ConfigDir: filepath.Join("/etc", org, name),
			DataDir:   filepath.Join("/var/lib", org, name),
			LogDir:    filepath.Join("/var/log", org, name),
			CacheDir:  filepath.Join("/var/cache", org, name),
			PIDFile:   filepath.Join("/var/run", org, name+".pid"),
		}
	}

	homeDir, _ := os.UserHomeDir()
	baseData := filepath.Join(homeDir, ".local/share", org, name)
	return &Paths{
		ConfigDir: filepath.Join(homeDir, ".config", org, name),
		DataDir:   baseData,
		LogDir:    filepath.Join(homeDir, ".local/log", org, name),
		CacheDir:  filepath.Join(homeDir, ".cache", org, name),
		PIDFile:   filepath.Join(baseData, name+".pid"),
	}
}

func getDarwinPaths(org, name string, privileged bool) *Paths {
	if privileged {
		baseConfig := filepath.Join("/Library/Application Support", org, name)
		return &Paths{
			ConfigDir: baseConfig,
			DataDir:   filepath.Join(baseConfig, "data"),
			LogDir:    filepath.Join("/Library/Logs", org, name),
			CacheDir:  filepath.Join("/Library/Caches", org, name),
			PIDFile:   filepath.Join("/var/run", org, name+".pid"),
		}
	}

	homeDir, _ := os.UserHomeDir()
	baseConfig := filepath.Join(homeDir, "Library/Application Support", org, name)
	return &Paths{
		ConfigDir: baseConfig,
		DataDir:   baseConfig,
		LogDir:    filepath.Join(homeDir, "Library/Logs", org, name),
		CacheDir:  filepath.Join(homeDir, "Library/Caches", org, name),
		PIDFile:   filepath.Join(baseConfig, name+".pid"),
	}
}

func getBSDPaths(org, name string, privileged bool) *Paths {
	if privileged {
		return &Paths{
			ConfigDir: filepath.Join("/usr/local/etc", org, name),
			DataDir:   filepath.Join("/var/db", org, name),
			LogDir:    filepath.Join("/var/log", org, name),
			CacheDir:  filepath.Join("/var/cache", org, name),
			PIDFile:   filepath.Join("/var/run", org, name+".pid"),
		}
	}
	return getLinuxPaths(org, name, false)
}

func getWindowsPaths(org, name string, privileged bool) *Paths {
	if privileged {
		programData := os.Getenv("ProgramData")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		baseConfig := filepath.Join(programData, org, name)
		return &Paths{
			ConfigDir: baseConfig,
			DataDir:   filepath.Join(baseConfig, "data"),
			LogDir:    filepath.Join(baseConfig, "logs"),
			CacheDir:  filepath.Join(baseConfig, "cache"),
			PIDFile:   filepath.Join(baseConfig, name+".pid"),
		}
	}

	appData := os.Getenv("AppData")
	localAppData := os.Getenv("LocalAppData")
	if appData == "" {
		homeDir, _ := os.UserHomeDir()
		appData = filepath.Join(homeDir, "AppData", "Roaming")
		localAppData = filepath.Join(homeDir, "AppData", "Local")
	}

	baseData := filepath.Join(localAppData, org, name)
	return &Paths{
		ConfigDir: filepath.Join(appData, org, name),
		DataDir:   baseData,
		LogDir:    filepath.Join(baseData, "logs"),
		CacheDir:  filepath.Join(baseData, "cache"),
		PIDFile:   filepath.Join(baseData, name+".pid"),
	}
}

// ConfigPath returns the path to stoqserver.yml
func (p *Paths) ConfigPath(fileName string) string {
	return filepath.Join(p.ConfigDir, fileName)
}

// ExtensionsPath returns the directory holding the bundled extension archives
func (p *Paths) ExtensionsPath() string {
	return filepath.Join(p.ResourceDir, ExtensionsDir)
}

// SharedDataDir returns the application directory under the shared system
// data location (ALLUSERSPROFILE on Windows). There is no fallback.
func SharedDataDir(env environ.Env) (string, error) {
	base := env.Get(SharedDataVar)
	if base == "" {
		return "", fmt.Errorf("%w: %s", ErrSharedDataUnset, SharedDataVar)
	}
	return filepath.Join(base, ProjectOrg), nil
}

// CredentialsPath returns the pgpass file inside dataDir
func CredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, CredentialsFile)
}
