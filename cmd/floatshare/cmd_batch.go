package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"sp1500_float/pkg/core/ingest"
	"sp1500_float/pkg/core/pipeline"
	"sp1500_float/pkg/core/store"
	"sp1500_float/pkg/models"

	"github.com/spf13/cobra"
)

var batchFlags struct {
	limit   int
	workers int
	xlsx    bool
	output  string
}

var batchCmd = &cobra.Command{
	Use:   "batch [ticker...]",
	Short: "Analyze many tickers and write a batch report",
	Long: `Analyze the given tickers, or the S&P 1500 constituents when none are given.

Failures are isolated per ticker. Ctrl-C stops dispatching new tickers; the
ones in flight finish and the rest are reported as skipped.

Usage:
  floatshare batch AAPL MSFT,NVDA
  floatshare batch --limit 25 --workers 4 --xlsx`,
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.IntVar(&batchFlags.limit, "limit", 0, "Analyze at most N constituents (0 = all)")
	f.IntVar(&batchFlags.workers, "workers", 0, "Concurrent tickers (default: batch.workers)")
	f.BoolVar(&batchFlags.xlsx, "xlsx", false, "Also write an XLSX report (default: output.xlsx)")
	f.StringVarP(&batchFlags.output, "output", "o", "", "Report directory (default: output.dir)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	tickers := normalizeTickers(args)
	if len(tickers) == 0 {
		cs, err := ingest.NewConstituentsClient(a.cfg.SEC.UserAgent).Fetch(ctx)
		if err != nil {
			return fmt.Errorf("load constituents: %w", err)
		}
		tickers = tickerSymbols(cs, batchFlags.limit)
		a.logger.Info().Int("constituents", len(cs)).Int("selected", len(tickers)).Msg("tickers loaded from S&P 1500")
	} else if batchFlags.limit > 0 && batchFlags.limit < len(tickers) {
		tickers = tickers[:batchFlags.limit]
	}

	orch, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		stop := serveMetrics(addr, a)
		defer stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			orch.Stop()
		}
	}()

	workers := batchFlags.workers
	if workers <= 0 {
		workers = a.cfg.Batch.Workers
	}
	res, err := orch.AnalyzeBatch(ctx, tickers, pipeline.BatchOptions{Workers: workers})
	if err != nil {
		return err
	}

	dir := batchFlags.output
	if dir == "" {
		dir = a.cfg.Output.Dir
	}
	path, err := store.WriteBatchJSON(dir, res)
	if err != nil {
		return err
	}
	a.logger.Info().Str("path", path).Msg("batch report written")
	if batchFlags.xlsx || a.cfg.Output.XLSX {
		xpath, err := store.WriteBatchXLSX(dir, res)
		if err != nil {
			return err
		}
		a.logger.Info().Str("path", xpath).Msg("batch workbook written")
	}

	printTally(res)
	return nil
}

// serveMetrics exposes /metrics until the returned func is called.
func serveMetrics(addr string, a *app) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn().Str("addr", addr).Err(err).Msg("metrics server stopped")
		}
	}()
	a.logger.Info().Str("addr", addr).Msg("serving /metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
}

func printTally(res *models.BatchResult) {
	t := res.Tally
	fmt.Printf("\nBatch %s: %d succeeded, %d failed, %d skipped in %s\n",
		res.RunID, t.Succeeded, t.Failed, t.Skipped, res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	if res.Stopped {
		fmt.Println("Stopped before all tickers were dispatched.")
	}
	stages := make([]string, 0, len(t.ByStage))
	for s := range t.ByStage {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	for _, s := range stages {
		fmt.Printf("  %-12s %d\n", s, t.ByStage[s])
	}
}
