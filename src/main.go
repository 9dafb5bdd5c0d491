package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stoq/stoqserver/src/app"
	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/database"
	"github.com/stoq/stoqserver/src/environ"
	"github.com/stoq/stoqserver/src/logging"
	"github.com/stoq/stoqserver/src/mode"
	"github.com/stoq/stoqserver/src/paths"
	"github.com/stoq/stoqserver/src/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()
	env := environ.FromOS()

	// Worker children skip bootstrap entirely
	if ran, code, err := worker.Dispatch(ctx, env, os.Args[1:]); ran {
		if err != nil {
			fmt.Fprintf(os.Stderr, "stoqserver: %v\n", err)
		}
		return code
	}

	layout := paths.Get(paths.IsPrivileged())
	cfg, err := config.Load(app.ConfigPath(os.Args[1:], layout), env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stoqserver: %v\n", err)
		return 1
	}

	mode.FromEnv(env)
	if cfg.Mode != "" {
		mode.Set(cfg.Mode)
	}
	if cfg.Debug {
		mode.SetDebug(true)
	}

	logger, closer, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stoqserver: %v\n", err)
		return 1
	}
	defer closer.Close()

	cli := app.New(logger)
	cli.Paths = layout

	seq := &bootstrap.Sequencer{
		Config:  cfg,
		Drivers: concurrency.DriverFunc(database.Registered),
		Entry:   cli.Main,
		Logger:  logger,
		Stderr:  os.Stderr,
		Paths:   layout,
	}
	code, err := seq.Run(ctx, os.Args, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stoqserver: %v\n", err)
	}
	return code
}
