package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/sink"
)

var (
	exportSnapshot string
	exportOut      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the snapshot to an xlsx workbook, one sheet per channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportSnapshot != "" {
			cfg.Sink.SnapshotPath = exportSnapshot
		}
		if exportOut != "" {
			cfg.Sink.XLSXPath = exportOut
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		doc, err := sink.NewSnapshot(cfg.Sink.SnapshotPath).Load(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "export: load snapshot")
		}
		if doc.Count == 0 && len(doc.Candidates) == 0 {
			zap.L().Warn("export: snapshot is empty", zap.String("path", cfg.Sink.SnapshotPath))
		}

		if err := sink.WriteXLSX(cfg.Sink.XLSXPath, doc.Candidates); err != nil {
			return eris.Wrap(err, "export: write xlsx")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d candidates to %s\n", len(doc.Candidates), cfg.Sink.XLSXPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSnapshot, "snapshot", "", "snapshot path (default: sink.snapshot_path)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "workbook path (default: sink.xlsx_path)")
	rootCmd.AddCommand(exportCmd)
}
