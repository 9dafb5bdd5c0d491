package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/mode"
	"github.com/stoq/stoqserver/src/paths"
	"github.com/stoq/stoqserver/src/worker"
)

// envReport is the resolved startup environment as printed by "env"
type envReport struct {
	RunID         string                `yaml:"run_id"`
	Mode          string                `yaml:"mode"`
	Runtime       mode.Runtime          `yaml:"runtime"`
	Substrate     concurrency.Substrate `yaml:"substrate"`
	Frozen        bool                  `yaml:"frozen"`
	ExecutableDir string                `yaml:"executable_dir,omitempty"`
	DataDir       string                `yaml:"data_dir,omitempty"`
	ResourceDir   string                `yaml:"resource_dir"`
	CacheDir      string                `yaml:"cache_dir"`
	SearchPath    []string              `yaml:"search_path"`
	Variables     map[string]string     `yaml:"variables"`
	Timings       map[string]string     `yaml:"timings"`
}

// reportedVars are the environment variables bootstrap may set
var reportedVars = []string{"PATH", paths.CredentialsEnv, paths.SharedDataVar, worker.SearchPathEnv}

func newEnvReport(bc bootstrap.Context) envReport {
	r := envReport{
		RunID:         bc.RunID,
		Mode:          mode.String(),
		Runtime:       bc.Mode,
		Substrate:     bc.Substrate,
		Frozen:        bc.Frozen,
		ExecutableDir: bc.ExecutableDir,
		DataDir:       bc.DataDir,
		ResourceDir:   bc.ResourceDir,
		CacheDir:      bc.CacheDir,
		SearchPath:    bc.SearchPath.Entries(),
		Variables:     make(map[string]string),
		Timings:       make(map[string]string),
	}
	for _, k := range reportedVars {
		if v, ok := bc.Env.Lookup(k); ok {
			r.Variables[k] = v
		}
	}
	for _, t := range bc.Timings {
		d := t.Duration.Round(time.Microsecond).String()
		if t.Skipped {
			d = "skipped"
		}
		r.Timings[t.Phase] = d
	}
	return r
}

func (a *App) newEnvCmd(bc bootstrap.Context, styled func() bool) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Show the resolved startup environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := newEnvReport(bc)
			w := cmd.OutOrStdout()

			switch output {
			case "yaml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return err
				}
				return enc.Close()
			case "table", "":
			default:
				return fmt.Errorf("unknown output format %q (use table or yaml)", output)
			}

			p := printer{w: w, styled: styled()}
			p.title("stoqserver environment")
			p.field("run id", report.RunID)
			p.field("mode", report.Mode)
			p.field("runtime", report.Runtime.String())
			p.field("backend", report.Substrate.Backend.String())
			p.field("database", report.Substrate.Database.String())
			p.field("patches", joinOrNone(report.Substrate.Patches))
			p.field("frozen", report.Frozen)
			if report.Frozen {
				p.field("executable dir", report.ExecutableDir)
				p.field("data dir", report.DataDir)
			}
			p.field("resource dir", report.ResourceDir)
			p.field("cache dir", report.CacheDir)

			p.title("search path")
			if len(report.SearchPath) == 0 {
				p.path("", "(empty)")
			}
			for i, e := range report.SearchPath {
				p.path(fmt.Sprintf("%2d. ", i+1), e)
			}

			p.title("variables")
			for _, k := range reportedVars {
				if v, ok := report.Variables[k]; ok {
					p.field(k, v)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, yaml")
	return cmd
}
