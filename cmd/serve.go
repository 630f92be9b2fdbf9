package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/api"
	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/monitoring"
	"github.com/sells-group/repreneur-cli/internal/sink"
	"github.com/sells-group/repreneur-cli/internal/store"
)

var servePort int

// ledgerSampleSize bounds how many recent runs the ledger collector reads per scrape.
const ledgerSampleSize = 200

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the latest snapshot and run ledger over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open run ledger")
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newServeHandler(cfg, st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("snapshot", cfg.Sink.SnapshotPath),
			zap.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newServeHandler wires the read API over the snapshot file and ledger, with
// a registry exposing process and ledger metrics.
func newServeHandler(c *config.Config, st store.Store) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		monitoring.NewLedgerCollector(st, ledgerSampleSize),
	)

	h := api.New(sink.NewSnapshot(c.Sink.SnapshotPath), st, reg)
	return h.Router(c.Server.AllowedOrigins)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
