package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/config"
)

var (
	cfg *config.Config

	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "repreneur",
	Short: "Acquisition-lead pipeline for French small businesses",
	Long: `Finds French craft, luxury and heritage businesses worth acquiring.

"run" queries the Pappers registry, the Actify liquidation listing and BODACC
collective-procedure notices, tags each company SUCCESSION or DISTRESSED,
merges it into the previous snapshot and records the run in the ledger.
"fetch" prints raw source records, "export" writes the snapshot to xlsx,
"serve" exposes it over HTTP and "runs" inspects past runs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyLogFlags(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// applyLogFlags lets --log-level and --log-format override the config file
// and environment.
func applyLogFlags(cmd *cobra.Command, c *config.Config) {
	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		c.Log.Level = logLevel
	}
	if f := cmd.Flag("log-format"); f != nil && f.Changed {
		c.Log.Format = logFormat
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
