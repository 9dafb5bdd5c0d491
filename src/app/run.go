package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/database"
	"github.com/stoq/stoqserver/src/paths"
	"github.com/stoq/stoqserver/src/server"
)

func (a *App) newRunCmd(bc bootstrap.Context) *cobra.Command {
	var (
		multiClient bool
		address     string
		port        int
		pidFile     string
		noDatabase  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the server",
		Long: `Run the point-of-sale server.

With --multiclient several clients share the server and the database pool
is sized for concurrent access.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.logger().With("run_id", bc.RunID)

			cfg := bc.Config
			if cfg == nil {
				cfg = &config.Config{}
			}
			srvCfg := *cfg
			if cmd.Flags().Changed("address") {
				srvCfg.Server.Address = address
			}
			if cmd.Flags().Changed("port") {
				srvCfg.Server.Port = port
			}

			if multiClient != bc.Mode.MultiClient {
				logger.Warn("multi-client flag and detected mode disagree", "flag", multiClient, "mode", bc.Mode.String())
			}

			if pidFile == "" {
				layout := a.Paths
				if layout == nil {
					layout = paths.Get(paths.IsPrivileged())
				}
				pidFile = layout.PIDFile
			}
			if err := server.WritePIDFile(pidFile); err != nil {
				return err
			}
			defer server.RemovePIDFile(pidFile)

			var db *database.DB
			if !noDatabase {
				var err error
				db, err = database.Open(srvCfg.Database, bc.Substrate, bc.Env)
				if err != nil {
					return fmt.Errorf("database: %w", err)
				}
				defer db.Close()
				serverVersion, err := db.ServerVersion(ctx)
				if err != nil {
					return fmt.Errorf("database: %w", err)
				}
				logger.Info("database connected",
					"driver", db.Driver(),
					"server_version", serverVersion,
					"remote", db.IsRemote(),
					"pool", db.PoolSize())
			}

			srv := server.New(server.Deps{
				Config:    &srvCfg,
				Bootstrap: bc,
				Backend:   concurrency.New(bc.Substrate, srvCfg.Server.MaxInFlight),
				DB:        db,
				Logger:    logger,
			})
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().BoolVar(&multiClient, "multiclient", false, "serve several clients concurrently")
	cmd.Flags().StringVar(&address, "address", "", "listen address (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "PID file path")
	cmd.Flags().BoolVar(&noDatabase, "no-database", false, "start without a database connection")
	return cmd
}
