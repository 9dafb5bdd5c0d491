// Package app is the stoqserver command line. Its Main is the entry point
// the bootstrap sequencer delegates to.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/logging"
	"github.com/stoq/stoqserver/src/paths"
)

// ExitError carries a specific exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// App holds the streams and logger shared by all commands
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Paths is the OS layout used for the PID file
	Paths *paths.Paths
}

// New returns an App writing to the process streams
func New(logger *slog.Logger) *App {
	return &App{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Main runs the command line with the bootstrapped context
func (a *App) Main(ctx context.Context, bc bootstrap.Context, args []string) (int, error) {
	root := a.newRootCmd(bc)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0, nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, exitErr.Err
	}
	return 1, err
}

func (a *App) stdout() io.Writer {
	if a.Stdout == nil {
		return os.Stdout
	}
	return a.Stdout
}

func (a *App) stderr() io.Writer {
	if a.Stderr == nil {
		return os.Stderr
	}
	return a.Stderr
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return logging.Discard()
	}
	return a.Logger
}

func (a *App) newRootCmd(bc bootstrap.Context) *cobra.Command {
	var noColor bool

	root := &cobra.Command{
		Use:           "stoqserver",
		Short:         "Stoq point-of-sale server",
		Long:          `stoqserver runs the Stoq point-of-sale server and its maintenance commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout())
	root.SetErr(a.stderr())

	// --config is consumed before bootstrap by ConfigPath; it is declared
	// here so the parser accepts it.
	root.PersistentFlags().StringP("config", "c", "", "config file path")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	styled := func() bool { return !noColor && isTerminal(a.stdout()) }

	root.AddCommand(
		a.newRunCmd(bc),
		a.newVersionCmd(),
		a.newEnvCmd(bc, styled),
		a.newExtensionsCmd(bc, styled),
	)
	return root
}

// ConfigPath returns the config file named by --config in args, or the
// default location in layout.
func ConfigPath(args []string, layout *paths.Paths) string {
	for i, a := range args {
		switch {
		case a == "--":
			return layout.ConfigPath(config.FileName)
		case a == "--config" || a == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return layout.ConfigPath(config.FileName)
}

func fail(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
