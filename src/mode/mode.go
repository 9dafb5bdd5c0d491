package mode

import (
	"runtime"
	"strings"

	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/environ"
)

// Invocation tokens recognized during mode detection. They are only
// inspected, never stripped from the arguments forwarded to the entry point.
const (
	ServerToken      = "run"
	MultiClientToken = "--multiclient"
)

// Runtime holds the flags derived from the invocation arguments.
// It is computed once, before any concurrency decision.
type Runtime struct {
	Server      bool `json:"server" yaml:"server"`
	MultiClient bool `json:"multi_client" yaml:"multi_client"`
}

// Detect reports which runtime tokens appear anywhere in args
func Detect(args []string) Runtime {
	var rt Runtime
	for _, a := range args {
		switch a {
		case ServerToken:
			rt.Server = true
		case MultiClientToken:
			rt.MultiClient = true
		}
	}
	return rt
}

func (r Runtime) String() string {
	switch {
	case r.Server && r.MultiClient:
		return "server (multi-client)"
	case r.Server:
		return "server"
	default:
		return "command"
	}
}

var (
	currentMode  = Production
	debugEnabled = false
)

type Mode int

const (
	Production Mode = iota
	Development
)

func (m Mode) String() string {
	switch m {
	case Development:
		return "development"
	default:
		return "production"
	}
}

// Set sets the application mode
func Set(m string) {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "dev", "development":
		currentMode = Development
	default:
		currentMode = Production
	}
	updateProfilingSettings()
}

// SetDebug enables or disables debug mode
func SetDebug(enabled bool) {
	debugEnabled = enabled
	updateProfilingSettings()
}

func updateProfilingSettings() {
	if debugEnabled {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(1)
	} else {
		runtime.SetBlockProfileRate(0)
		runtime.SetMutexProfileFraction(0)
	}
}

// IsDevelopment returns true if in development mode
func IsDevelopment() bool {
	return currentMode == Development
}

// IsDebug returns true if debug mode is enabled
func IsDebug() bool {
	return debugEnabled
}

// String returns mode string with debug suffix if enabled
func String() string {
	s := currentMode.String()
	if debugEnabled {
		s += " [debugging]"
	}
	return s
}

// FromEnv sets mode and debug from STOQSERVER_MODE and STOQSERVER_DEBUG
func FromEnv(env environ.Env) {
	if m := env.Get("STOQSERVER_MODE"); m != "" {
		Set(m)
	}
	if config.ParseBoolDefault(env.Get("STOQSERVER_DEBUG"), false) {
		SetDebug(true)
	}
}
