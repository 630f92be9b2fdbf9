package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/monitoring"
	"github.com/sells-group/repreneur-cli/internal/pipeline"
)

var (
	runSources  []string
	runDryRun   bool
	runSnapshot string
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full pass over the sources and update the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRunEnv(ctx, cfg, runSources, runSnapshot, runDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		result, runErr := env.Pipeline.Run(ctx, pipeline.Options{DryRun: runDryRun})

		if err := monitoring.WriteTextfile(env.Registry, cfg.Metrics.TextfilePath); err != nil {
			zap.L().Warn("failed to write metrics textfile", zap.Error(err))
		}

		out := cmd.OutOrStdout()
		switch {
		case runJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result.Summary); err != nil {
				return eris.Wrap(err, "encode summary")
			}
		default:
			fmt.Fprint(out, pipeline.FormatReport(result.Summary))
		}

		if runErr != nil {
			return eris.Wrap(runErr, "pipeline run")
		}
		if runDryRun {
			zap.L().Info("dry run: snapshot not written", zap.Int("candidates", len(result.Candidates)))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runSources, "sources", nil, "comma-separated sources to run (default: sources.enabled)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "merge without writing the snapshot or the run ledger")
	runCmd.Flags().StringVar(&runSnapshot, "snapshot", "", "snapshot path (default: sink.snapshot_path)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(runCmd)
}
