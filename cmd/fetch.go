package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/repreneur-cli/internal/source"
)

var fetchSources []string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run the source adapters only and print raw records as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		sectors, err := loadSectors(cfg)
		if err != nil {
			return err
		}
		adapters, err := selectAdapters(cfg, sectors, fetchSources)
		if err != nil {
			return err
		}

		results := source.FetchAll(cmd.Context(), adapters, time.Duration(cfg.Sources.TimeoutSecs)*time.Second)
		if err := writeRecords(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		return reportFetchErrors(cmd.ErrOrStderr(), results)
	},
}

// writeRecords emits one JSON object per raw record, sources in order.
func writeRecords(w io.Writer, results []source.Result) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		for _, rec := range r.Records {
			if err := enc.Encode(rec); err != nil {
				return eris.Wrap(err, "encode record")
			}
		}
	}
	return nil
}

// reportFetchErrors prints per-source outcomes and fails when every source
// failed.
func reportFetchErrors(w io.Writer, results []source.Result) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			_, _ = fmt.Fprintf(w, "%s: %s: %v\n", r.Source, source.KindOf(r.Err), r.Err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s: %d records in %s\n", r.Source, len(r.Records), r.Duration.Round(time.Millisecond))
	}
	if len(results) > 0 && failed == len(results) {
		return eris.New("fetch: every source failed")
	}
	return nil
}

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchSources, "sources", nil, "comma-separated sources to fetch (default: sources.enabled)")
	rootCmd.AddCommand(fetchCmd)
}
